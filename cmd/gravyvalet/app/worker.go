package app

import (
	"context"
	"errors"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/CenterForOpenScience/gravyvalet/pkg/invocation"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Run a deferred-invocation worker",
	Long: `Consume the deferred-operation queue and execute invocations. Any number
of workers may run concurrently; the invocation claim keeps each record on
exactly one of them.`,
	RunE:         runWorker,
	SilenceUsage: true,
}

func runWorker(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rt, err := newRuntime(ctx)
	if err != nil {
		return err
	}
	defer rt.Close()

	worker := invocation.NewWorker(rt.queue, rt.engine)
	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
