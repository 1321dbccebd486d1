package cli

import (
	"fmt"
	"io"
	"os"
	"sort"
	"sync"
	"time"

	"emperror.dev/errors"
	"github.com/apex/log"
	"github.com/apex/log/handlers/cli"
	color2 "github.com/fatih/color"
	"github.com/mattn/go-colorable"
)

var Default = New(os.Stderr, Options{Colors: true, Stacktraces: true})

var (
	bold    = color2.New(color2.Bold)
	boldred = color2.New(color2.Bold, color2.FgRed)
)

var Strings = [...]string{
	log.DebugLevel: "DEBUG",
	log.InfoLevel:  " INFO",
	log.WarnLevel:  " WARN",
	log.ErrorLevel: "ERROR",
	log.FatalLevel: "FATAL",
}

// Fields printed ahead of everything else, in this order.
var leading = []string{"request_id", "method", "path", "status"}

type Options struct {
	// Colorize output when writing to a terminal.
	Colors bool
	// Print the stacktrace of an "error" field on error and fatal entries.
	Stacktraces bool
	// Timestamp layout, time.StampMilli when empty.
	TimeFormat string
}

type Handler struct {
	mu      sync.Mutex
	Writer  io.Writer
	Padding int
	opts    Options
}

func New(w io.Writer, opts Options) *Handler {
	if opts.TimeFormat == "" {
		opts.TimeFormat = time.StampMilli
	}
	if f, ok := w.(*os.File); ok && opts.Colors {
		return &Handler{Writer: colorable.NewColorable(f), Padding: 2, opts: opts}
	}
	return &Handler{Writer: colorable.NewNonColorable(w), Padding: 2, opts: opts}
}

// HandleLog implements log.Handler.
func (h *Handler) HandleLog(e *log.Entry) error {
	color := cli.Colors[e.Level]
	level := Strings[e.Level]

	h.mu.Lock()
	defer h.mu.Unlock()

	color.Fprintf(h.Writer, "%s: [%s] %-25s", bold.Sprintf("%*s", h.Padding+1, level), e.Timestamp.Format(h.opts.TimeFormat), e.Message)
	for _, name := range fieldOrder(e.Fields) {
		fmt.Fprintf(h.Writer, " %s=%v", color.Sprint(name), e.Fields.Get(name))
	}
	fmt.Fprintln(h.Writer)

	if !h.opts.Stacktraces || e.Level < log.ErrorLevel {
		return nil
	}
	if err, ok := e.Fields.Get("error").(error); ok {
		// Attach the stacktrace if it is missing at this point, but don't point
		// it specifically to this line since that is irrelevant.
		err = errors.WithStackDepthIf(err, 1)
		fmt.Fprintf(h.Writer, "\n%s\n%+v\n\n", boldred.Sprintf("Stacktrace:"), err)
	}
	return nil
}

func fieldOrder(fields log.Fields) []string {
	names := make([]string, 0, len(fields))
	for _, name := range leading {
		if _, ok := fields[name]; ok {
			names = append(names, name)
		}
	}
	rest := make([]string, 0, len(fields))
	for name := range fields {
		if name == "source" || contains(leading, name) {
			continue
		}
		rest = append(rest, name)
	}
	sort.Strings(rest)
	return append(names, rest...)
}

func contains(s []string, v string) bool {
	for _, x := range s {
		if x == v {
			return true
		}
	}
	return false
}
