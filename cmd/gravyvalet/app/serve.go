package app

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/CenterForOpenScience/gravyvalet/pkg/api"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the gravyvalet API server",
	Long: `Run the HTTP API server: operation invocations, OAuth callbacks, the
waterbutler settings endpoint, healthcheck, and metrics.`,
	RunE:         runServe,
	SilenceUsage: true,
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rt, err := newRuntime(ctx)
	if err != nil {
		return err
	}
	defer rt.Close()

	return api.Serve(ctx, rt.cfg.ListenAddress, api.Deps{
		Store:           rt.store,
		Engine:          rt.engine,
		Coordinator:     rt.coordinator,
		HMACSharedKeys:  rt.cfg.HMACSharedKeys,
		MetricsGatherer: rt.metrics,
	})
}
