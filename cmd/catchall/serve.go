package main

import (
	"os/signal"
	"syscall"

	"catchall/internal/banner"
	"catchall/internal/config"

	"github.com/spf13/cobra"
)

type serveOptions struct {
	envFile   string
	logLevel  string
	addr      string
	templates string
}

func (o *serveOptions) bindServeFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&o.addr, "addr", "", "Listen address; overrides LISTEN_ADDR")
	cmd.Flags().StringVar(&o.templates, "templates", "", "Templates directory; overrides TEMPLATES_DIR")
}

// NewServeCmd creates the serve command.
func NewServeCmd(opts *serveOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the catch-all HTTP server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd, opts)
		},
	}
	opts.bindServeFlags(cmd)
	return cmd
}

// apply lets command-line flags win over the environment.
func (o *serveOptions) apply(cfg *config.Config) {
	if o.addr != "" {
		cfg.Server.ListenAddr = o.addr
	}
	if o.templates != "" {
		cfg.Pages.Dir = o.templates
	}
	if o.logLevel != "" {
		cfg.LogLevel = o.logLevel
	}
}

func runServe(cmd *cobra.Command, opts *serveOptions) error {
	cfg, err := config.Load(opts.envFile)
	if err != nil {
		return err
	}
	opts.apply(cfg)

	logger := cfg.Logger()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(cfg, logger)
	if err != nil {
		logger.WithCaller().Error("Failed to initialize", logger.Args("error", err))
		return err
	}
	defer a.Close()

	banner.Print(a.bannerInfo())
	return a.Run(ctx)
}
