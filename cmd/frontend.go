package cmd

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/apex/log"
	"github.com/spf13/cobra"

	"github.com/filebay/filebay/config"
	"github.com/filebay/filebay/frontend"
	"github.com/filebay/filebay/internal/report"
	"github.com/filebay/filebay/remote"
)

var frontendArgs struct {
	BackendURL       string
	PublicBackendURL string
}

func newFrontendCommand() *cobra.Command {
	command := &cobra.Command{
		Use:   "frontend",
		Short: "Run the HTML front end, which reaches the shared directory through the API",
		Args:  cobra.NoArgs,
		RunE:  frontendCmdRun,
	}
	command.Flags().StringVar(&frontendArgs.BackendURL, "backend", "", "the URL of the API, overrides frontend.backend_url")
	command.Flags().StringVar(&frontendArgs.PublicBackendURL, "public-backend", "", "the URL browsers use to reach the API for downloads, overrides frontend.public_backend_url")
	return command
}

func frontendCmdRun(*cobra.Command, []string) error {
	c, err := boot("frontend")
	if err != nil {
		return err
	}
	defer report.Flush(2 * time.Second)

	applyFrontendArgs(c)
	ctx, stop := signalContext()
	defer stop()
	return serveFrontend(ctx, c, readyAfter(1))
}

func applyFrontendArgs(c *config.Configuration) {
	if frontendArgs.BackendURL != "" {
		c.Frontend.BackendURL = frontendArgs.BackendURL
	}
	if frontendArgs.PublicBackendURL != "" {
		c.Frontend.PublicBackendURL = frontendArgs.PublicBackendURL
	}
	config.Set(c)
}

// serveFrontend runs the front end webserver until ctx is cancelled.
func serveFrontend(ctx context.Context, c *config.Configuration, ready func()) error {
	client := remote.New(
		c.Frontend.BackendURL,
		remote.WithTimeout(c.Frontend.RequestTimeout),
		remote.WithPublicURL(c.PublicBackendURL()),
	)
	r, err := frontend.Configure(client, frontend.Options{UploadLimit: c.Api.UploadLimit})
	if err != nil {
		return err
	}

	log.WithFields(log.Fields{
		"backend_url":  c.Frontend.BackendURL,
		"public_url":   c.PublicBackendURL(),
		"host_address": c.Frontend.Host,
		"host_port":    c.Frontend.Port,
	}).Info("configuring front end webserver")

	s := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", c.Frontend.Host, c.Frontend.Port),
		Handler:           r,
		ReadHeaderTimeout: 30 * time.Second,
	}
	return runServer(ctx, s, ready, s.Serve)
}
