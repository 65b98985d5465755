// Command rewind runs a rolling screen-recording session behind an HTTP
// control API, a message router and optional MCP tools.
package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
	_ "modernc.org/sqlite"

	"github.com/hazyhaar/rewind/capture"
)

var version = "dev"

var (
	configPath string
	logLevel   string
)

func main() {
	root := &cobra.Command{
		Use:           "rewind",
		Short:         "Rolling recording buffer with replay of the last moments",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "YAML configuration file")
	root.PersistentFlags().StringVar(&logLevel, "log-level", "info", "debug, info, warn or error")

	root.AddCommand(serveCmd())
	root.AddCommand(extractCmd())
	root.AddCommand(inspectCmd())
	root.AddCommand(routesCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "rewind:", err)
		os.Exit(1)
	}
}

// newLogger writes JSON logs to stderr; stdout is reserved for command
// output and the MCP stdio transport.
func newLogger() *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(logLevel) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
	slog.SetDefault(logger)
	return logger
}

func loadConfig() (*capture.Config, error) {
	if configPath == "" {
		return capture.DefaultConfig(), nil
	}
	return capture.LoadConfigFile(configPath)
}
