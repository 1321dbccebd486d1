package cmd

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sync/atomic"
	"syscall"
	"time"

	"emperror.dev/errors"
	"github.com/NYTimes/logrotate"
	"github.com/apex/log"
	"github.com/apex/log/handlers/multi"
	"github.com/mitchellh/colorstring"
	"github.com/spf13/cobra"
	"golang.org/x/crypto/acme"
	"golang.org/x/crypto/acme/autocert"

	"github.com/filebay/filebay/config"
	"github.com/filebay/filebay/filesystem"
	"github.com/filebay/filebay/internal/notify"
	"github.com/filebay/filebay/internal/report"
	"github.com/filebay/filebay/loggers/cli"
	"github.com/filebay/filebay/router"
	"github.com/filebay/filebay/system"
)

var (
	configPath      = config.DefaultLocation
	debug           = false
	rootDirectory   = ""
	useAutomaticTls = false
	tlsHostname     = ""
)

var root = &cobra.Command{
	Use:           "filebay",
	Short:         "Share a directory tree over HTTP",
	SilenceUsage:  true,
	SilenceErrors: true,
	PreRunE:       checkTlsFlags,
	RunE:          rootCmdRun,
}

func init() {
	root.PersistentFlags().StringVar(&configPath, "config", config.DefaultLocation, "set the location for the configuration file")
	root.PersistentFlags().BoolVar(&debug, "debug", false, "pass in order to run filebay in debug mode")
	addServerFlags(root)

	root.AddCommand(newFrontendCommand())
	root.AddCommand(newServeAllCommand())
	root.AddCommand(newVersionCommand())
	root.AddCommand(newConfigureCommand())
	root.AddCommand(newDiagnosticsCommand())
}

// addServerFlags registers the flags of every command that runs the API
// server.
func addServerFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&rootDirectory, "root", "", "the directory to share, overrides system.root_directory")
	cmd.Flags().BoolVar(&useAutomaticTls, "auto-tls", false, "pass in order to have filebay generate and manage its own SSL certificates using Let's Encrypt")
	cmd.Flags().StringVar(&tlsHostname, "tls-hostname", "", "required with --auto-tls, the FQDN for the generated SSL certificate")
}

func checkTlsFlags(*cobra.Command, []string) error {
	if useAutomaticTls && tlsHostname == "" {
		return errors.New("a TLS hostname must be provided when running with automatic TLS, e.g.:\n\n    filebay --auto-tls --tls-hostname files.example.com")
	}
	return nil
}

// Execute calls cobra to handle cli commands.
func Execute() {
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, colorstring.Color("[red][bold]error:[reset] "+err.Error()))
		os.Exit(1)
	}
}

// readConfiguration loads the configuration file and applies the command line
// overrides on top of it. The result is also stored as the global
// configuration.
func readConfiguration() (*config.Configuration, error) {
	p := configPath
	if !filepath.IsAbs(p) {
		d, err := os.Getwd()
		if err != nil {
			return nil, errors.WithStack(err)
		}
		p = filepath.Join(d, p)
	}
	if s, err := os.Stat(p); err == nil && s.IsDir() {
		return nil, errors.New("cannot use directory as configuration file path")
	}

	c, err := config.Load(p)
	if err != nil {
		return nil, err
	}
	if debug {
		c.Debug = true
	}
	if rootDirectory != "" {
		c.System.RootDirectory = rootDirectory
	}
	config.Set(c)
	return c, nil
}

// boot reads the configuration and prepares the process wide logger and error
// reporting for the named service.
func boot(service string) (*config.Configuration, error) {
	c, err := readConfiguration()
	if err != nil {
		return nil, err
	}
	printLogo()
	if err := configureLogging(c.System.LogDirectory, service, c.Debug); err != nil {
		return nil, err
	}
	log.WithField("path", c.Path()).Info("loading configuration from path")
	if c.Debug {
		log.Debug("running in debug mode")
	}
	if err := report.Init(c.Sentry, service); err != nil {
		log.WithField("error", err).Warn("failed to configure error reporting, continuing without it")
	} else if report.Enabled() {
		log.WithField("environment", c.Sentry.Environment).Info("reporting errors to sentry")
	}
	return c, nil
}

// signalContext returns a context cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func rootCmdRun(*cobra.Command, []string) error {
	c, err := boot("api")
	if err != nil {
		return err
	}
	defer report.Flush(2 * time.Second)

	ctx, stop := signalContext()
	defer stop()
	return serveApi(ctx, c, readyAfter(1))
}

// serveApi opens the shared directory and runs the JSON API until ctx is
// cancelled. ready is called once the server accepts connections.
func serveApi(ctx context.Context, c *config.Configuration, ready func()) error {
	if err := os.MkdirAll(c.System.RootDirectory, 0o755); err != nil {
		return errors.Wrap(err, "failed to create root directory")
	}
	fs, err := filesystem.New(
		c.System.RootDirectory,
		filesystem.WithOpenat2(c.System.UseOpenat2),
		filesystem.WithMimeWorkers(c.System.MimeWorkers),
	)
	if err != nil {
		return err
	}
	defer fs.Close()

	log.WithFields(log.Fields{
		"root":         fs.Path(),
		"use_ssl":      c.Api.Ssl.Enabled,
		"use_auto_tls": useAutomaticTls,
		"host_address": c.Api.Host,
		"host_port":    c.Api.Port,
	}).Info("configuring API webserver")

	r := router.Configure(fs, router.Options{
		UploadLimit:    c.Api.UploadLimit,
		DownloadLimit:  c.Api.DownloadLimit,
		AllowedOrigins: c.Api.AllowedOrigins,
	})
	s := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", c.Api.Host, c.Api.Port),
		Handler:      r,
		ReadTimeout:  c.Api.ReadTimeout,
		WriteTimeout: c.Api.WriteTimeout,
		TLSConfig:    tlsConfig(),
	}

	// Check if the server should run with TLS but using autocert.
	if useAutomaticTls {
		m := autocert.Manager{
			Prompt:     autocert.AcceptTOS,
			Cache:      autocert.DirCache(filepath.Join(filepath.Dir(c.Path()), ".tls-cache")),
			HostPolicy: autocert.HostWhitelist(tlsHostname),
		}
		s.TLSConfig.GetCertificate = m.GetCertificate
		s.TLSConfig.NextProtos = append(s.TLSConfig.NextProtos, acme.ALPNProto)

		challenge := &http.Server{Addr: ":http", Handler: m.HTTPHandler(nil)}
		go func() {
			if err := challenge.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.WithField("error", err).Error("failed to serve autocert http server")
			}
		}()
		defer challenge.Close()

		log.WithField("hostname", tlsHostname).Info("API webserver is listening with auto-TLS enabled; certificates will be generated by Let's Encrypt")
		return runServer(ctx, s, ready, func(ln net.Listener) error {
			return s.ServeTLS(ln, "", "")
		})
	}

	if c.Api.Ssl.Enabled {
		return runServer(ctx, s, ready, func(ln net.Listener) error {
			return s.ServeTLS(ln, c.Api.Ssl.CertificateFile, c.Api.Ssl.KeyFile)
		})
	}

	s.TLSConfig = nil
	return runServer(ctx, s, ready, s.Serve)
}

func tlsConfig() *tls.Config {
	return &tls.Config{
		NextProtos: []string{"h2", "http/1.1"},
		// @see https://blog.cloudflare.com/exposing-go-on-the-internet
		CipherSuites: []uint16{
			tls.TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256,
			tls.TLS_ECDHE_ECDSA_WITH_AES_256_GCM_SHA384,
			tls.TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256,
			tls.TLS_ECDHE_RSA_WITH_AES_256_GCM_SHA384,
			tls.TLS_ECDHE_RSA_WITH_CHACHA20_POLY1305_SHA256,
			tls.TLS_ECDHE_ECDSA_WITH_CHACHA20_POLY1305_SHA256,
		},
		MinVersion:       tls.VersionTLS12,
		CurvePreferences: []tls.CurveID{tls.X25519, tls.CurveP256},
	}
}

// readyAfter returns a function telling the service manager that the process
// is ready once it has been called n times, one call per webserver.
func readyAfter(n int32) func() {
	var count atomic.Int32
	return func() {
		if count.Add(1) != n {
			return
		}
		if err := notify.Readiness(); err != nil {
			log.WithField("error", err).Warn("failed to notify service manager of readiness")
		}
	}
}

// runServer binds s.Addr, hands the listener to serve and blocks until serving
// fails or ctx is cancelled. On cancellation the server is given a few
// seconds to finish the requests in flight.
func runServer(ctx context.Context, s *http.Server, ready func(), serve func(net.Listener) error) error {
	ln, err := net.Listen("tcp", s.Addr)
	if err != nil {
		return errors.Wrapf(err, "failed to listen on %s", s.Addr)
	}
	log.WithField("address", ln.Addr().String()).Info("webserver is now listening")
	ready()

	errs := make(chan error, 1)
	go func() {
		errs <- serve(ln)
	}()

	select {
	case err := <-errs:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return errors.Wrapf(err, "failed to serve on %s", s.Addr)
	case <-ctx.Done():
	}

	if err := notify.Stopping(); err != nil {
		log.WithField("error", err).Warn("failed to notify service manager of shutdown")
	}
	log.WithField("address", s.Addr).Info("shutting down webserver")
	sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.Shutdown(sctx); err != nil {
		return errors.Wrap(err, "failed to shut down webserver")
	}
	return nil
}

// configureLogging sets up the global logger. Output always goes to the
// console; when logDir is set it is also written to a log file that is
// reopened on SIGHUP so it can be rotated externally.
func configureLogging(logDir string, service string, debug bool) error {
	if debug {
		log.SetLevel(log.DebugLevel)
	} else {
		log.SetLevel(log.InfoLevel)
	}
	if logDir == "" {
		log.SetHandler(cli.Default)
		return nil
	}

	if err := os.MkdirAll(logDir, 0o700); err != nil {
		return errors.Wrap(err, "failed to create log directory")
	}
	p := filepath.Join(logDir, "filebay-"+service+".log")
	w, err := logrotate.NewFile(p)
	if err != nil {
		return errors.WithMessage(err, "failed to open process log file")
	}

	log.SetHandler(multi.New(
		cli.Default,
		// Write through w rather than w.File, which is swapped out on SIGHUP.
		cli.New(w, cli.Options{Stacktraces: true}),
	))
	log.WithField("path", p).Info("writing log files to disk")
	return nil
}

// Prints the filebay logo, nothing special here!
func printLogo() {
	fmt.Print(colorstring.Color(fmt.Sprintf(`
   ____ __     __
  / __/(_)/___/ /  ___ _ __ __
 / _/ / // -_) _ \/ _ `+"`"+`// // /
/_/  /_//\__/_.__/\_,_/ \_, /
  [blue][bold]filebay[reset]              /___/  [bold]v%s[reset]

Share a directory tree over HTTP.

`, system.Version)))
}
