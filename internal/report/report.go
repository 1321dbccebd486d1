// Package report forwards server errors and recovered panics to Sentry. All
// functions are no-ops until Init has been called with a DSN.
package report

import (
	"sync/atomic"
	"time"

	"emperror.dev/errors"
	"github.com/getsentry/sentry-go"

	"github.com/filebay/filebay/config"
	"github.com/filebay/filebay/system"
)

var enabled atomic.Bool

// Init configures the Sentry client. An empty DSN leaves reporting disabled
// and is not an error.
func Init(cfg config.SentryConfiguration, service string) error {
	if cfg.DSN == "" {
		return nil
	}
	err := sentry.Init(sentry.ClientOptions{
		Dsn:              cfg.DSN,
		Environment:      cfg.Environment,
		Release:          "filebay@" + system.Version,
		ServerName:       service,
		AttachStacktrace: true,
	})
	if err != nil {
		return errors.Wrap(err, "report: failed to initialize sentry")
	}
	enabled.Store(true)
	return nil
}

// Enabled reports whether errors are being forwarded.
func Enabled() bool {
	return enabled.Load()
}

// CaptureError sends err along with the given tags.
func CaptureError(err error, tags map[string]string) {
	if err == nil || !enabled.Load() {
		return
	}
	sentry.WithScope(func(scope *sentry.Scope) {
		scope.SetTags(tags)
		sentry.CaptureException(err)
	})
}

// Recover reports a recovered panic value.
func Recover(v interface{}, tags map[string]string) {
	if v == nil || !enabled.Load() {
		return
	}
	sentry.WithScope(func(scope *sentry.Scope) {
		scope.SetTags(tags)
		sentry.CurrentHub().Recover(v)
	})
}

// Flush waits up to timeout for queued events to be delivered.
func Flush(timeout time.Duration) {
	if enabled.Load() {
		sentry.Flush(timeout)
	}
}
