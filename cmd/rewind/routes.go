package main

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/hazyhaar/rewind/connectivity"
)

func routesCmd() *cobra.Command {
	var dbPath string
	cmd := &cobra.Command{
		Use:   "routes",
		Short: "Edit the action routes table read by a running server",
	}
	cmd.PersistentFlags().StringVar(&dbPath, "db", "", "routes database (default routes.db from the configuration)")

	open := func() (*sql.DB, error) {
		path := dbPath
		if path == "" {
			cfg, err := loadConfig()
			if err != nil {
				return nil, err
			}
			path = cfg.Routes.DB
		}
		if path == "" {
			return nil, fmt.Errorf("no routes database: set --db or routes.db")
		}
		db, err := connectivity.OpenDB(path)
		if err != nil {
			return nil, err
		}
		if err := connectivity.Init(db); err != nil {
			db.Close()
			return nil, err
		}
		return db, nil
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List routes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			db, err := open()
			if err != nil {
				return err
			}
			defer db.Close()
			rows, err := db.QueryContext(cmd.Context(),
				`SELECT action, strategy, COALESCE(endpoint, ''), COALESCE(config, '{}') FROM action_routes ORDER BY action`)
			if err != nil {
				return err
			}
			defer rows.Close()

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ACTION\tSTRATEGY\tENDPOINT\tCONFIG")
			for rows.Next() {
				var action, strategy, endpoint, config string
				if err := rows.Scan(&action, &strategy, &endpoint, &config); err != nil {
					return err
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", action, strategy, endpoint, config)
			}
			if err := rows.Err(); err != nil {
				return err
			}
			return tw.Flush()
		},
	})

	var endpoint, config string
	set := &cobra.Command{
		Use:   "set ACTION STRATEGY",
		Short: "Create or replace a route (strategy: local, http or disabled)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			action, strategy := args[0], args[1]
			switch strategy {
			case connectivity.StrategyLocal, connectivity.StrategyDisabled:
			case connectivity.StrategyHTTP:
				if endpoint == "" {
					return fmt.Errorf("strategy http needs --endpoint")
				}
			default:
				return fmt.Errorf("unknown strategy %q", strategy)
			}
			if !json.Valid([]byte(config)) {
				return fmt.Errorf("--route-config is not valid JSON")
			}
			db, err := open()
			if err != nil {
				return err
			}
			defer db.Close()
			_, err = db.ExecContext(cmd.Context(), `
				INSERT INTO action_routes (action, strategy, endpoint, config, updated_at)
				VALUES (?, ?, ?, ?, strftime('%s', 'now'))
				ON CONFLICT(action) DO UPDATE SET
					strategy = excluded.strategy,
					endpoint = excluded.endpoint,
					config = excluded.config,
					updated_at = excluded.updated_at`,
				action, strategy, endpoint, config)
			return err
		},
	}
	set.Flags().StringVar(&endpoint, "endpoint", "", "peer message endpoint, e.g. http://host:8790/api/message")
	set.Flags().StringVar(&config, "route-config", "{}", `route JSON config, e.g. {"timeout_ms":2000}`)
	cmd.AddCommand(set)

	cmd.AddCommand(&cobra.Command{
		Use:   "rm ACTION",
		Short: "Delete a route; the action runs locally again",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := open()
			if err != nil {
				return err
			}
			defer db.Close()
			res, err := db.ExecContext(cmd.Context(), `DELETE FROM action_routes WHERE action = ?`, args[0])
			if err != nil {
				return err
			}
			if n, _ := res.RowsAffected(); n == 0 {
				return fmt.Errorf("no route for %s", args[0])
			}
			return nil
		},
	})
	return cmd
}
