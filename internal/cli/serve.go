package cli

import (
	"github.com/spf13/cobra"

	"github.com/dmitrijs2005/rtmp-auth/internal/logging"
	"github.com/dmitrijs2005/rtmp-auth/internal/server"
	"github.com/dmitrijs2005/rtmp-auth/internal/server/config"
)

func (a *App) serveCmd() *cobra.Command {
	var (
		apiAddr      string
		frontendAddr string
		healthAddr   string
		prefix       string
		insecure     bool
		logLevel     string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the callback API and the admin frontend",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			flags := cmd.Flags()
			cfg, err := a.loadConfig(func(c *config.Config) {
				if flags.Changed("api-addr") {
					c.API.Address = apiAddr
				}
				if flags.Changed("frontend-addr") {
					c.Frontend.Address = frontendAddr
				}
				if flags.Changed("health-addr") {
					c.Health.Address = healthAddr
				}
				if flags.Changed("subpath") {
					c.Frontend.Prefix = prefix
				}
				if flags.Changed("insecure") {
					c.Frontend.Insecure = insecure
				}
				if flags.Changed("log-level") {
					c.Log.Level = logLevel
				}
			})
			if err != nil {
				return err
			}

			logger := logging.New(a.out, cfg.Log.Level)
			logger.Info(cmd.Context(), "using config",
				"api", cfg.API.Address,
				"frontend", cfg.Frontend.Address,
				"backend", cfg.Store.Backend,
				"applications", cfg.Applications)

			app, err := server.NewApp(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			return app.Run(cmd.Context())
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&apiAddr, "api-addr", "", "API bind address")
	flags.StringVar(&frontendAddr, "frontend-addr", "", "frontend bind address")
	flags.StringVar(&healthAddr, "health-addr", "", "gRPC health bind address, empty disables it")
	flags.StringVar(&prefix, "subpath", "", "serve the frontend below this path, e.g. behind a reverse proxy")
	flags.BoolVar(&insecure, "insecure", false, "allow the CSRF cookie over plain HTTP")
	flags.StringVar(&logLevel, "log-level", "", "debug, info, warn or error")
	return cmd
}
