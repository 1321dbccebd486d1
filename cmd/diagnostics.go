package cmd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/AlecAivazis/survey/v2"
	"github.com/acobaugh/osrelease"
	"github.com/apex/log"
	"github.com/spf13/cobra"
	"golang.org/x/sys/unix"

	"github.com/filebay/filebay/config"
	"github.com/filebay/filebay/filesystem"
	"github.com/filebay/filebay/loggers/cli"
	"github.com/filebay/filebay/remote"
	"github.com/filebay/filebay/system"
)

const DefaultLogLines = 200

var diagnosticsArgs struct {
	IncludeEndpoints bool
	IncludeLogs      bool
	LogLines         int
	Yes              bool
}

func newDiagnosticsCommand() *cobra.Command {
	command := &cobra.Command{
		Use:   "diagnostics",
		Short: "Collect information about this filebay instance to assist in debugging",
		Args:  cobra.NoArgs,
		PreRun: func(cmd *cobra.Command, args []string) {
			log.SetHandler(cli.Default)
		},
		RunE: diagnosticsCmdRun,
	}
	command.Flags().IntVar(&diagnosticsArgs.LogLines, "log-lines", DefaultLogLines, "the number of log lines to include in the report")
	command.Flags().BoolVarP(&diagnosticsArgs.Yes, "yes", "y", false, "do not prompt, include endpoints and logs")
	return command
}

// diagnosticsCmdRun prints a report covering the filebay and kernel versions,
// the relevant parts of the configuration, the state of the shared directory,
// whether the API answers, and the latest log lines.
func diagnosticsCmdRun(cmd *cobra.Command, _ []string) error {
	if diagnosticsArgs.Yes {
		diagnosticsArgs.IncludeEndpoints = true
		diagnosticsArgs.IncludeLogs = true
	} else {
		questions := []*survey.Question{
			{
				Name:   "IncludeEndpoints",
				Prompt: &survey.Confirm{Message: "Do you want to include endpoints (i.e. the hostnames and URLs in use)?", Default: false},
			},
			{
				Name:   "IncludeLogs",
				Prompt: &survey.Confirm{Message: "Do you want to include the latest logs?", Default: true},
			},
		}
		if err := survey.Ask(questions, &diagnosticsArgs); err != nil {
			return promptError(err)
		}
	}

	c, err := readConfiguration()
	if err != nil {
		// Still useful without a configuration, fall back to the defaults.
		fmt.Fprintln(cmd.ErrOrStderr(), "could not load configuration:", err)
		if c, err = config.NewAtPath(configPath); err != nil {
			return err
		}
	}

	output := &strings.Builder{}
	fmt.Fprintln(output, "filebay - Diagnostics Report")
	printHeader(output, "Versions")
	fmt.Fprintln(output, "             filebay:", system.Version)
	fmt.Fprintln(output, "                  Go:", runtime.Version())
	if v, err := kernelVersion(); err == nil {
		fmt.Fprintln(output, "              Kernel:", v)
	}
	if rel, err := osrelease.Read(); err == nil {
		fmt.Fprintln(output, "                  OS:", system.FirstNotEmpty(rel["PRETTY_NAME"], rel["NAME"]))
	}

	printHeader(output, "Configuration")
	fmt.Fprintln(output, "  Configuration File:", c.Path())
	fmt.Fprintln(output, "      Root Directory:", c.System.RootDirectory)
	fmt.Fprintln(output, "      Logs Directory:", c.System.LogDirectory)
	fmt.Fprintln(output, "         Use openat2:", c.System.UseOpenat2)
	fmt.Fprintln(output, "        Mime Workers:", c.System.MimeWorkers)
	fmt.Fprintln(output, "")
	fmt.Fprintln(output, "       API Webserver:", redact(c.Api.Host), ":", c.Api.Port)
	fmt.Fprintln(output, "         SSL Enabled:", c.Api.Ssl.Enabled)
	fmt.Fprintln(output, "     SSL Certificate:", redact(c.Api.Ssl.CertificateFile))
	fmt.Fprintln(output, "             SSL Key:", redact(c.Api.Ssl.KeyFile))
	fmt.Fprintln(output, "        Upload Limit:", system.FormatBytes(c.Api.UploadLimit))
	fmt.Fprintln(output, "      Download Limit:", downloadLimit(c.Api.DownloadLimit))
	fmt.Fprintln(output, "     Allowed Origins:", redact(strings.Join(c.Api.AllowedOrigins, ", ")))
	fmt.Fprintln(output, "")
	fmt.Fprintln(output, "  Front End Webserver:", redact(c.Frontend.Host), ":", c.Frontend.Port)
	fmt.Fprintln(output, "         Backend URL:", redact(c.Frontend.BackendURL))
	fmt.Fprintln(output, "  Public Backend URL:", redact(c.PublicBackendURL()))
	fmt.Fprintln(output, "")
	fmt.Fprintln(output, "      Sentry Enabled:", c.Sentry.DSN != "")
	fmt.Fprintln(output, "         Server Time:", time.Now().Format(time.RFC1123Z))
	fmt.Fprintln(output, "          Debug Mode:", c.Debug)

	printHeader(output, "Shared Directory")
	printRootStatus(output, c)

	printHeader(output, "API")
	ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
	defer cancel()
	if err := remote.New(c.Frontend.BackendURL, remote.WithMaxAttempts(1)).Health(ctx); err != nil {
		fmt.Fprintln(output, "Health check failed:", err)
	} else {
		fmt.Fprintln(output, "Health check passed.")
	}

	printHeader(output, "Latest filebay Logs")
	if diagnosticsArgs.IncludeLogs {
		printLogs(output, c.System.LogDirectory, diagnosticsArgs.LogLines)
	} else {
		fmt.Fprintln(output, "Logs redacted.")
	}

	report := output.String()
	if !diagnosticsArgs.IncludeEndpoints {
		for _, v := range append([]string{c.Api.Host, c.Frontend.Host, c.Frontend.BackendURL, c.PublicBackendURL()}, c.Api.AllowedOrigins...) {
			if v != "" && v != "*" {
				report = strings.ReplaceAll(report, v, "{redacted}")
			}
		}
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "\n---------------  generated report  ---------------")
	fmt.Fprintln(out, report)
	fmt.Fprint(out, "---------------   end of report    ---------------\n\n")
	return nil
}

func kernelVersion() (string, error) {
	var u unix.Utsname
	if err := unix.Uname(&u); err != nil {
		return "", err
	}
	return unix.ByteSliceToString(u.Release[:]), nil
}

func downloadLimit(v int) string {
	if v <= 0 {
		return "unlimited"
	}
	return fmt.Sprintf("%d MiB/s", v)
}

// printRootStatus reports whether the shared directory can be opened and how
// paths below it are confined.
func printRootStatus(w io.Writer, c *config.Configuration) {
	fs, err := filesystem.New(c.System.RootDirectory, filesystem.WithOpenat2(c.System.UseOpenat2))
	if err != nil {
		fmt.Fprintln(w, "Cannot open root directory:", err)
		return
	}
	defer fs.Close()

	fmt.Fprintln(w, "      Canonical Path:", fs.Path())
	fmt.Fprintln(w, "   Confinement Using:", fs.Confinement())
	if l, err := fs.List(""); err != nil {
		fmt.Fprintln(w, "Cannot list root directory:", err)
	} else {
		fmt.Fprintln(w, "     Top Level Items:", len(l.Items))
	}
	if err := unix.Access(fs.Path(), unix.W_OK); err != nil {
		fmt.Fprintln(w, "Root directory is not writable by this user:", err)
	}
}

// printLogs writes the last n lines of every filebay log file in dir.
func printLogs(w io.Writer, dir string, n int) {
	matches, _ := filepath.Glob(filepath.Join(dir, "filebay-*.log"))
	if len(matches) == 0 {
		fmt.Fprintln(w, "No logs found or an error occurred.")
		return
	}
	for _, p := range matches {
		fmt.Fprintln(w, "==>", filepath.Base(p), "<==")
		lines, err := tail(p, n)
		if err != nil {
			fmt.Fprintln(w, "Could not read log file:", err)
			continue
		}
		for _, l := range lines {
			fmt.Fprintln(w, l)
		}
	}
}

func tail(p string, n int) ([]string, error) {
	f, err := os.Open(p)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var lines []string
	s := bufio.NewScanner(f)
	s.Buffer(make([]byte, 64*1024), 1024*1024)
	for s.Scan() {
		lines = append(lines, s.Text())
		if len(lines) > n {
			lines = lines[1:]
		}
	}
	return lines, s.Err()
}

func redact(s string) string {
	if !diagnosticsArgs.IncludeEndpoints {
		return "{redacted}"
	}
	return s
}

func printHeader(w io.Writer, title string) {
	fmt.Fprintln(w, "\n|\n|", title)
	fmt.Fprintln(w, "| ------------------------------")
}
