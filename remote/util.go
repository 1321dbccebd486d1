package remote

import (
	"net/http"

	"github.com/apex/log"
)

// Logs the outgoing request into the debug log. Only the headers that help
// follow a request between the two hops are included.
func debugLogRequest(req *http.Request) {
	if l, ok := log.Log.(*log.Logger); ok && l.Level != log.DebugLevel {
		return
	}
	fields := log.Fields{
		"method":   req.Method,
		"endpoint": req.URL.String(),
	}
	if ct := req.Header.Get("Content-Type"); ct != "" {
		fields["content_type"] = ct
	}
	if id := req.Header.Get("X-Request-Id"); id != "" {
		fields["request_id"] = id
	}
	log.WithFields(fields).Debug("making request to filebay API")
}
