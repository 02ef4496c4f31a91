// Command minihttpd serves the files of one directory over HTTP.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/f4ah6o/minihttpd/internal/config"
	"github.com/f4ah6o/minihttpd/internal/server"
)

type options struct {
	configPath string
	address    string
	port       int
	backlog    int
	root       string
	maxConns   int
	debug      bool
}

func main() {
	if err := newRootCmd(&options{}).Execute(); err != nil {
		color.New(color.FgRed).Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd(opts *options) *cobra.Command {
	defaults := config.Default()

	cmd := &cobra.Command{
		Use:           "minihttpd",
		Short:         "Serve static files from a directory",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.config(cmd)
			if err != nil {
				return err
			}
			return run(cmd.Context(), cfg, newLogger(opts.debug))
		},
	}

	f := cmd.Flags()
	f.StringVarP(&opts.configPath, "config", "c", "", "TOML or YAML config file")
	f.StringVarP(&opts.address, "address", "a", defaults.Address, "IP address to bind")
	f.IntVarP(&opts.port, "port", "p", defaults.Port, "Port to serve on")
	f.IntVarP(&opts.backlog, "backlog", "b", defaults.Backlog, "Maximum queue of pending connections")
	f.StringVarP(&opts.root, "root", "r", defaults.Root, "Directory to serve")
	f.IntVar(&opts.maxConns, "max-conns", defaults.MaxConns, "Cap on concurrent connections (0 = unbounded)")
	f.BoolVar(&opts.debug, "debug", false, "Log dropped connections and other debug detail")
	return cmd
}

// config loads the file, if any, then applies the flags that were set
// explicitly on top of it.
func (o *options) config(cmd *cobra.Command) (config.Config, error) {
	cfg := config.Default()
	if o.configPath != "" {
		var err error
		if cfg, err = config.Load(o.configPath); err != nil {
			return cfg, err
		}
	}

	f := cmd.Flags()
	if o.configPath == "" || f.Changed("address") {
		cfg.Address = o.address
	}
	if o.configPath == "" || f.Changed("port") {
		cfg.Port = o.port
	}
	if o.configPath == "" || f.Changed("backlog") {
		cfg.Backlog = o.backlog
	}
	if o.configPath == "" || f.Changed("root") {
		cfg.Root = o.root
	}
	if o.configPath == "" || f.Changed("max-conns") {
		cfg.MaxConns = o.maxConns
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	root, err := cfg.AbsRoot()
	if err != nil {
		return cfg, err
	}
	if info, err := os.Stat(root); err != nil || !info.IsDir() {
		return cfg, fmt.Errorf("directory does not exist: %s", root)
	}
	return cfg, nil
}

func newLogger(debug bool) *slog.Logger {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

func run(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv, err := server.Start(cfg, server.WithLogger(logger))
	if err != nil {
		var be *server.BindError
		if errors.As(err, &be) {
			return fmt.Errorf("cannot listen on %s: %w", be.Addr, be.Err)
		}
		return err
	}

	root, _ := cfg.AbsRoot()
	color.New(color.FgGreen, color.Bold).Printf("Serving %s at http://%s\n", root, srv.Addr())
	color.New(color.Faint).Println("Press Ctrl+C to stop")

	<-ctx.Done()
	stop()
	color.New(color.FgYellow).Println("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownGrace.Std())
	defer cancel()
	if err := srv.Stop(shutdownCtx); err != nil {
		if errors.Is(err, server.ErrShutdownTimeout) {
			logger.Warn("some requests were still in flight at exit")
			return nil
		}
		return err
	}
	return nil
}
