package cmd

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/chaos-io/bgstrip/logger"
	"github.com/chaos-io/bgstrip/server"
	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the batch run API over HTTP",
	Long: `Start an HTTP server that runs batches on request.

  GET  /healthz       liveness
  POST /v1/runs       start a batch (409 while one is running)
  GET  /v1/runs       recent runs, newest first
  GET  /v1/runs/:id   one run with its report

The input and output directories come from the configuration.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		p, err := newPipeline(appConfig)
		if err != nil {
			return err
		}
		if !verbose {
			gin.SetMode(gin.ReleaseMode)
		}

		srv, err := server.New(p.RunWithID, server.Options{Logger: logger.ComponentLogger("server")})
		if err != nil {
			return err
		}
		return srv.ListenAndServe(ctx, appConfig.Server.Addr)
	},
}

func init() {
	serveCmd.Flags().String("addr", "", "listen address (default :8080)")
}
