package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/spf13/cobra"

	"github.com/hazyhaar/rewind/api"
	"github.com/hazyhaar/rewind/capture"
	"github.com/hazyhaar/rewind/connectivity"
)

type serveFlags struct {
	addr     string
	backend  string
	feed     string
	routesDB string
	mcpStdio bool
}

func serveCmd() *cobra.Command {
	var f serveFlags
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the recording session and its control API",
		Long: `Run the recording session.

Records are posted to /api/recording/events, or read from a file of
line-delimited JSON records with --feed ("-" reads stdin). Malformed feed
lines are skipped; a feed that fails to read stops the server.

Examples:
  rewind serve --addr 127.0.0.1:8790
  rewind serve --backend sqlite --config rewind.yaml
  recorder | rewind serve --feed - --mcp`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd, f)
		},
	}
	cmd.Flags().StringVar(&f.addr, "addr", "", "HTTP listen address (overrides http.addr)")
	cmd.Flags().StringVar(&f.backend, "backend", "", "store backend: memory, sqlite or redis (overrides store.backend)")
	cmd.Flags().StringVar(&f.feed, "feed", "", "read records from this file instead of the HTTP ingest endpoint")
	cmd.Flags().StringVar(&f.routesDB, "routes-db", "", "SQLite action routes database (overrides routes.db)")
	cmd.Flags().BoolVar(&f.mcpStdio, "mcp", false, "also serve MCP tools on stdin/stdout")
	return cmd
}

func runServe(cmd *cobra.Command, f serveFlags) error {
	logger := newLogger()
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("addr") {
		cfg.HTTP.Addr = f.addr
	}
	if cmd.Flags().Changed("backend") {
		cfg.Store.Backend = f.backend
	}
	if cmd.Flags().Changed("routes-db") {
		cfg.Routes.DB = f.routesDB
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if f.mcpStdio && f.feed == "-" {
		return errors.New("--feed - and --mcp both need stdin")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	store, err := capture.OpenStore(cfg.Store)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer store.Close()

	var (
		rec  capture.Recorder
		push *capture.PushRecorder
		feed *capture.FeedRecorder
	)
	if f.feed != "" {
		r, closeFeed, err := openFeed(f.feed)
		if err != nil {
			return err
		}
		defer closeFeed()
		feed = capture.NewFeedRecorder(r, logger)
		rec = feed
	} else {
		push = capture.NewPushRecorder()
		rec = push
	}

	hub := api.NewHub(logger)
	defer hub.Close()

	sess := capture.New(rec, store,
		capture.WithLogger(logger),
		capture.WithCaptureConfig(cfg.Capture),
		capture.WithStatusListener(hub.Broadcast),
	)
	defer sess.Close()

	if st, err := sess.Restore(ctx); err != nil {
		logger.Warn("restore failed", "error", err)
	} else if st.Save == capture.SaveUnsaved {
		logger.Info("restored unsaved recording", "id", st.ID, "target", st.Target, "records", st.Records)
	}

	router := connectivity.New(
		connectivity.WithLogger(logger),
		connectivity.WithMiddleware(
			connectivity.Recovery(logger),
			connectivity.Logging(logger),
		),
	)
	defer router.Close()
	router.RegisterTransport(connectivity.StrategyHTTP, connectivity.HTTPFactory())
	sess.RegisterConnectivity(router)

	if cfg.Routes.DB != "" {
		db, err := connectivity.OpenDB(cfg.Routes.DB)
		if err != nil {
			return fmt.Errorf("routes db: %w", err)
		}
		defer db.Close()
		if err := connectivity.Init(db); err != nil {
			return fmt.Errorf("routes init: %w", err)
		}
		go router.Watch(ctx, db, cfg.Routes.PollInterval)
	}

	opts := []api.Option{api.WithLogger(logger), api.WithHub(hub), api.WithMaxBody(cfg.HTTP.MaxBody)}
	if push != nil {
		opts = append(opts, api.WithPushRecorder(push))
	}
	srv := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           api.New(sess, router, opts...).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 3)
	if feed != nil {
		go watchFeed(ctx, feed, errc, logger)
	}
	go func() {
		logger.Info("http listening", "addr", cfg.HTTP.Addr, "backend", cfg.Store.Backend)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- fmt.Errorf("http: %w", err)
		}
	}()

	if f.mcpStdio {
		mcpSrv := mcp.NewServer(&mcp.Implementation{Name: "rewind", Version: version}, nil)
		sess.RegisterMCP(mcpSrv)
		go func() {
			logger.Info("mcp serving on stdio")
			if err := mcpSrv.Run(ctx, &mcp.StdioTransport{}); err != nil && ctx.Err() == nil {
				errc <- fmt.Errorf("mcp: %w", err)
			}
		}()
	}

	select {
	case <-ctx.Done():
	case err = <-errc:
		logger.Error("server failed", "error", err)
	}

	shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
	defer done()
	if sErr := srv.Shutdown(shutdownCtx); sErr != nil {
		logger.Warn("http shutdown", "error", sErr)
	}
	if fErr := sess.Flush(shutdownCtx); fErr != nil {
		logger.Warn("flush on shutdown", "error", fErr)
	}
	logger.Info("stopped")
	return err
}

// watchFeed reports the end of the feed. A read error is sent on errc; a
// clean end is only logged since recorded data stays available.
func watchFeed(ctx context.Context, feed *capture.FeedRecorder, errc chan<- error, logger *slog.Logger) {
	select {
	case <-feed.Done():
	case <-ctx.Done():
		return
	}
	c := feed.Counts()
	if err := feed.Err(); err != nil {
		logger.Error("feed failed", "error", err, "read", c.Read, "discarded", c.Discarded, "invalid", c.Invalid)
		errc <- fmt.Errorf("feed: %w", err)
		return
	}
	logger.Warn("feed ended, no more records will arrive", "read", c.Read, "discarded", c.Discarded, "invalid", c.Invalid)
}

func openFeed(path string) (io.Reader, func(), error) {
	if path == "-" {
		return os.Stdin, func() {}, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("open feed: %w", err)
	}
	return f, func() { f.Close() }, nil
}

