// Package notify tells a service manager about the state of the process
// through the datagram socket named by $NOTIFY_SOCKET (see sd_notify(3)).
// Without that variable every call is a no-op.
package notify

import (
	"net"
	"os"

	"emperror.dev/errors"
)

const (
	stateReady    = "READY=1"
	stateStopping = "STOPPING=1"
)

// Readiness reports that startup has finished and the webservers accept
// connections.
func Readiness() error {
	return send(stateReady)
}

// Stopping reports that a graceful shutdown has begun.
func Stopping() error {
	return send(stateStopping)
}

func send(state string) error {
	p := os.Getenv("NOTIFY_SOCKET")
	if p == "" {
		return nil
	}
	c, err := net.DialUnix("unixgram", nil, &net.UnixAddr{Name: p, Net: "unixgram"})
	if err != nil {
		return errors.Wrap(err, "notify: failed to dial socket")
	}
	defer c.Close()
	if _, err := c.Write([]byte(state)); err != nil {
		return errors.Wrap(err, "notify: failed to write state")
	}
	return nil
}
