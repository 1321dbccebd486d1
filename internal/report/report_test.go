package report

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/filebay/filebay/config"
)

func TestInitWithoutDSN(t *testing.T) {
	assert.NoError(t, Init(config.SentryConfiguration{}, "api"))
	assert.False(t, Enabled())

	// Every call is a no-op while disabled.
	CaptureError(errors.New("boom"), map[string]string{"path": "/"})
	Recover("panic", nil)
	Flush(time.Millisecond)
}

func TestInitWithInvalidDSN(t *testing.T) {
	err := Init(config.SentryConfiguration{DSN: "not-a-dsn"}, "api")
	assert.Error(t, err)
	assert.False(t, Enabled())
}
