package main

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	_ "github.com/nexconsult/rera-harvester/docs"
	"github.com/nexconsult/rera-harvester/internal/api"
	"github.com/nexconsult/rera-harvester/internal/services"
)

func newServeCmd() *cobra.Command {
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the on-demand project API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("port") {
				a.cfg.Server.Port = port
				if err := a.cfg.Validate(); err != nil {
					return err
				}
			}

			if a.cfg.Server.Environment == "production" {
				gin.SetMode(gin.ReleaseMode)
			}

			container, err := services.NewContainer(a.cfg, a.logger)
			if err != nil {
				return err
			}
			defer func() {
				if err := container.Close(); err != nil {
					a.logger.WithError(err).Error("Failed to close services")
				}
			}()

			server := api.NewServer(a.cfg, a.logger, api.DepsFromContainer(container))
			return server.ListenAndServe(cmd.Context(), 30*time.Second)
		},
	}

	cmd.Flags().IntVar(&port, "port", 8080, "listen port")
	return cmd
}
