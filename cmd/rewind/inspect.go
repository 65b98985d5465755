package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/hazyhaar/rewind/capture"
	"github.com/hazyhaar/rewind/capture/event"
	"github.com/hazyhaar/rewind/durable"
)

type inspectReport struct {
	Backend   string          `json:"backend"`
	Status    *capture.Status `json:"status,omitempty"`
	Records   int             `json:"records"`
	Snapshots int             `json:"snapshots"`
	First     int64           `json:"first_timestamp,omitempty"`
	Last      int64           `json:"last_timestamp,omitempty"`
	Span      string          `json:"span,omitempty"`
	// UpdatedAt is when the records were last mirrored (sqlite only).
	UpdatedAt time.Time       `json:"updated_at,omitzero"`
}

func inspectCmd() *cobra.Command {
	var withEvents bool
	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "Show the status and records persisted in the configured store",
		RunE: func(cmd *cobra.Command, _ []string) error {
			newLogger()
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			store, err := capture.OpenStore(cfg.Store)
			if err != nil {
				return err
			}
			defer store.Close()

			ctx := cmd.Context()
			rep := inspectReport{Backend: cfg.Store.Backend}

			raw, err := store.Read(ctx, cfg.Capture.StatusKey)
			if err != nil {
				return fmt.Errorf("read %s: %w", cfg.Capture.StatusKey, err)
			}
			if len(raw) > 0 {
				var st capture.Status
				if err := json.Unmarshal(raw, &st); err != nil {
					return fmt.Errorf("decode status: %w", err)
				}
				rep.Status = &st
			}

			raw, err = store.Read(ctx, cfg.Capture.EventsKey)
			if err != nil {
				return fmt.Errorf("read %s: %w", cfg.Capture.EventsKey, err)
			}
			recs, err := event.UnmarshalRecords(raw)
			if err != nil {
				return err
			}
			rep.Records = len(recs)
			for _, r := range recs {
				if r.IsSnapshot() {
					rep.Snapshots++
				}
			}
			if len(recs) > 0 {
				rep.First, rep.Last = recs[0].Timestamp, recs[len(recs)-1].Timestamp
				rep.Span = (time.Duration(rep.Last-rep.First) * time.Millisecond).String()
			}
			if sq, ok := store.(*durable.SQLite); ok {
				if rep.UpdatedAt, err = sq.UpdatedAt(ctx, cfg.Capture.EventsKey); err != nil {
					return fmt.Errorf("updated_at: %w", err)
				}
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if withEvents {
				return enc.Encode(struct {
					inspectReport
					Events []event.Record `json:"events"`
				}{rep, recs})
			}
			return enc.Encode(rep)
		},
	}
	cmd.Flags().BoolVar(&withEvents, "events", false, "include the records")
	return cmd
}
