package cmd

import (
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/filebay/filebay/internal/report"
)

func newServeAllCommand() *cobra.Command {
	command := &cobra.Command{
		Use:     "serve-all",
		Short:   "Run the API and the front end in a single process",
		Args:    cobra.NoArgs,
		PreRunE: checkTlsFlags,
		RunE:    serveAllCmdRun,
	}
	addServerFlags(command)
	command.Flags().StringVar(&frontendArgs.BackendURL, "backend", "", "the URL of the API, overrides frontend.backend_url")
	command.Flags().StringVar(&frontendArgs.PublicBackendURL, "public-backend", "", "the URL browsers use to reach the API for downloads, overrides frontend.public_backend_url")
	return command
}

// serveAllCmdRun runs both webservers. When either one stops with an error
// the other is shut down as well.
func serveAllCmdRun(*cobra.Command, []string) error {
	c, err := boot("all")
	if err != nil {
		return err
	}
	defer report.Flush(2 * time.Second)

	applyFrontendArgs(c)
	ctx, stop := signalContext()
	defer stop()

	ready := readyAfter(2)
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return serveApi(ctx, c, ready)
	})
	g.Go(func() error {
		return serveFrontend(ctx, c, ready)
	})
	return g.Wait()
}
