package cmd

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/apex/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/filebay/filebay/config"
	"github.com/filebay/filebay/loggers/cli"
)

func TestTail(t *testing.T) {
	p := filepath.Join(t.TempDir(), "filebay-api.log")
	var b strings.Builder
	for i := 1; i <= 10; i++ {
		fmt.Fprintf(&b, "line %d\n", i)
	}
	require.NoError(t, os.WriteFile(p, []byte(b.String()), 0o600))

	lines, err := tail(p, 3)
	require.NoError(t, err)
	assert.Equal(t, []string{"line 8", "line 9", "line 10"}, lines)

	lines, err = tail(p, 50)
	require.NoError(t, err)
	assert.Len(t, lines, 10)

	_, err = tail(filepath.Join(t.TempDir(), "missing.log"), 3)
	assert.Error(t, err)
}

func TestPrintLogs(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "filebay-api.log"), []byte("a\nb\n"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "other.log"), []byte("ignored\n"), 0o600))

	var out bytes.Buffer
	printLogs(&out, dir, 1)
	assert.Contains(t, out.String(), "==> filebay-api.log <==")
	assert.Contains(t, out.String(), "b\n")
	assert.NotContains(t, out.String(), "ignored")

	out.Reset()
	printLogs(&out, t.TempDir(), 1)
	assert.Contains(t, out.String(), "No logs found")
}

func TestPrintRootStatus(t *testing.T) {
	c, err := config.NewAtPath("")
	require.NoError(t, err)
	c.System.RootDirectory = t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(c.System.RootDirectory, "a.txt"), []byte("a"), 0o600))

	var out bytes.Buffer
	printRootStatus(&out, c)
	assert.Contains(t, out.String(), "Top Level Items: 1")
	assert.Contains(t, out.String(), "Confinement Using:")

	out.Reset()
	c.System.RootDirectory = filepath.Join(t.TempDir(), "missing")
	printRootStatus(&out, c)
	assert.Contains(t, out.String(), "Cannot open root directory")
}

func TestConfigureValidators(t *testing.T) {
	assert.NoError(t, validateAbsolutePath("/srv/share"))
	assert.Error(t, validateAbsolutePath("srv/share"))
	assert.Error(t, validateAbsolutePath(42))

	assert.NoError(t, validatePort("5000"))
	assert.Error(t, validatePort("0"))
	assert.Error(t, validatePort("70000"))
	assert.Error(t, validatePort("http"))

	assert.NoError(t, validateURL("http://localhost:5000"))
	assert.Error(t, validateURL("not a url"))
}

func TestDownloadLimit(t *testing.T) {
	assert.Equal(t, "unlimited", downloadLimit(0))
	assert.Equal(t, "5 MiB/s", downloadLimit(5))
}

func TestCheckTlsFlags(t *testing.T) {
	defer func() {
		useAutomaticTls = false
		tlsHostname = ""
	}()

	useAutomaticTls = true
	assert.Error(t, checkTlsFlags(nil, nil))

	tlsHostname = "files.example.com"
	assert.NoError(t, checkTlsFlags(nil, nil))
}

func TestVersionCommand(t *testing.T) {
	var out bytes.Buffer
	command := newVersionCommand()
	command.SetOut(&out)
	command.SetArgs([]string{})
	require.NoError(t, command.Execute())
	assert.True(t, strings.HasPrefix(out.String(), "filebay v"))
}

func TestConfigureLogging_ReopensOnSighup(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, configureLogging(dir, "rotate", false))
	t.Cleanup(func() {
		log.SetHandler(cli.Default)
	})

	p := filepath.Join(dir, "filebay-rotate.log")
	log.Info("before-rotate")
	require.NoError(t, os.Rename(p, p+".1"))
	require.NoError(t, syscall.Kill(os.Getpid(), syscall.SIGHUP))

	assert.Eventually(t, func() bool {
		log.Info("after-rotate")
		b, err := os.ReadFile(p)
		return err == nil && strings.Contains(string(b), "after-rotate")
	}, 5*time.Second, 50*time.Millisecond)

	rotated, err := os.ReadFile(p + ".1")
	require.NoError(t, err)
	assert.Contains(t, string(rotated), "before-rotate")
}
