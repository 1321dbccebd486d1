package config

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"emperror.dev/errors"
	"github.com/asaskevich/govalidator"
	"github.com/caarlos0/env/v11"
	"github.com/creasty/defaults"
	"gopkg.in/yaml.v3"

	"github.com/filebay/filebay/system"
)

const DefaultLocation = "/etc/filebay/config.yml"

var (
	mu      sync.RWMutex
	_config *Configuration
)

// Configuration is the root of the filebay configuration. Values are applied
// in order: struct defaults, the YAML file, then environment variables.
type Configuration struct {
	// The location from which this configuration instance was instantiated.
	path string

	// Determines if filebay should be running in debug mode. This value is
	// ignored if the debug flag is passed through the command line arguments.
	Debug bool `yaml:"debug" env:"FILEBAY_DEBUG"`

	System   SystemConfiguration   `yaml:"system"`
	Api      ApiConfiguration      `yaml:"api"`
	Frontend FrontendConfiguration `yaml:"frontend"`
	Sentry   SentryConfiguration   `yaml:"sentry"`
}

// SystemConfiguration defines where data and logs live on the host.
type SystemConfiguration struct {
	// The directory tree exposed over HTTP. Everything served or written is
	// confined to it.
	RootDirectory string `default:"/data" yaml:"root_directory" env:"UPLOAD_ROOT"`

	// Directory where the rotated log file is written. Leave empty to only
	// log to the console.
	LogDirectory string `default:"/var/log/filebay" yaml:"log_directory" env:"FILEBAY_LOG_DIRECTORY"`

	// Use openat2(2) with RESOLVE_BENEATH when the kernel supports it. When
	// disabled, or on older kernels, each path component is opened in turn
	// without following symlinks.
	UseOpenat2 bool `default:"true" yaml:"use_openat2" env:"FILEBAY_USE_OPENAT2"`

	// Number of concurrent mimetype lookups performed while listing a
	// directory.
	MimeWorkers int `default:"4" yaml:"mime_workers" env:"FILEBAY_MIME_WORKERS"`
}

// ApiConfiguration defines the JSON API webserver.
type ApiConfiguration struct {
	// The interface that the API webserver should bind to.
	Host string `default:"0.0.0.0" yaml:"host" env:"FILEBAY_API_HOST"`

	// The port that the API webserver should bind to.
	Port int `default:"5000" yaml:"port" env:"FILEBAY_API_PORT"`

	// The maximum size of an upload request body in bytes.
	UploadLimit int64 `default:"1073741824" yaml:"upload_limit" env:"MAX_CONTENT_LENGTH"`

	// The maximum download speed per request in MiB/s. Zero disables the
	// limit.
	DownloadLimit int `default:"0" yaml:"download_limit" env:"FILEBAY_DOWNLOAD_LIMIT"`

	ReadTimeout  time.Duration `default:"5m" yaml:"read_timeout" env:"FILEBAY_API_READ_TIMEOUT"`
	WriteTimeout time.Duration `default:"5m" yaml:"write_timeout" env:"FILEBAY_API_WRITE_TIMEOUT"`

	// SSL configuration for the API webserver.
	Ssl struct {
		Enabled         bool   `json:"enabled" yaml:"enabled" env:"FILEBAY_API_SSL"`
		CertificateFile string `json:"cert" yaml:"cert" env:"FILEBAY_API_SSL_CERT"`
		KeyFile         string `json:"key" yaml:"key" env:"FILEBAY_API_SSL_KEY"`
	} `yaml:"ssl"`

	// Origins allowed to call the API from a browser. A single "*" allows
	// any origin.
	AllowedOrigins []string `yaml:"allowed_origins" env:"FILEBAY_ALLOWED_ORIGINS" envSeparator:","`
}

// FrontendConfiguration defines the HTML front end webserver.
type FrontendConfiguration struct {
	Host string `default:"0.0.0.0" yaml:"host" env:"FILEBAY_FRONTEND_HOST"`
	Port int    `default:"3000" yaml:"port" env:"FILEBAY_FRONTEND_PORT"`

	// Where the front end reaches the API.
	BackendURL string `default:"http://localhost:5000" yaml:"backend_url" env:"BACKEND_URL"`

	// Where browsers reach the API for downloads. Defaults to BackendURL.
	PublicBackendURL string `yaml:"public_backend_url" env:"PUBLIC_BACKEND_URL"`

	// Timeout for a single call to the API.
	RequestTimeout time.Duration `default:"5m" yaml:"request_timeout" env:"FILEBAY_FRONTEND_REQUEST_TIMEOUT"`
}

// SentryConfiguration enables error reporting. Nothing is reported when the
// DSN is empty.
type SentryConfiguration struct {
	DSN         string `yaml:"dsn" env:"SENTRY_DSN"`
	Environment string `default:"production" yaml:"environment" env:"SENTRY_ENVIRONMENT"`
}

// NewAtPath returns a new configuration with every default applied. The path
// is only remembered, nothing is read from it.
func NewAtPath(path string) (*Configuration, error) {
	var c Configuration
	if err := defaults.Set(&c); err != nil {
		return nil, errors.WithStack(err)
	}
	c.path = path
	return &c, nil
}

// Load reads the configuration at path, then applies environment overrides.
// A missing file is not an error; the defaults are used instead.
func Load(path string) (*Configuration, error) {
	c, err := NewAtPath(path)
	if err != nil {
		return nil, err
	}
	b, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, errors.Wrap(err, "config: failed to read file")
	}
	if err == nil {
		// Replace environment variables within the configuration file with
		// their values from the host system.
		b = []byte(os.ExpandEnv(string(b)))
		if err := yaml.Unmarshal(b, c); err != nil {
			return nil, errors.Wrap(err, "config: failed to parse file")
		}
	}
	if err := env.Parse(c); err != nil {
		return nil, errors.Wrap(err, "config: failed to parse environment")
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Validate checks for values that would only fail later on, at the first
// request.
func (c *Configuration) Validate() error {
	if c.System.RootDirectory == "" {
		return errors.New("config: system.root_directory must be set")
	}
	if c.Api.UploadLimit <= 0 {
		return errors.New("config: api.upload_limit must be greater than zero")
	}
	if c.Api.DownloadLimit < 0 {
		return errors.New("config: api.download_limit cannot be negative")
	}
	if c.Api.Port <= 0 || c.Api.Port > 65535 {
		return errors.Errorf("config: api.port %d is out of range", c.Api.Port)
	}
	if c.Frontend.Port <= 0 || c.Frontend.Port > 65535 {
		return errors.Errorf("config: frontend.port %d is out of range", c.Frontend.Port)
	}
	if !isHTTPURL(c.Frontend.BackendURL) {
		return errors.Errorf("config: frontend.backend_url %q is not a valid URL", c.Frontend.BackendURL)
	}
	if c.Frontend.PublicBackendURL != "" && !isHTTPURL(c.Frontend.PublicBackendURL) {
		return errors.Errorf("config: frontend.public_backend_url %q is not a valid URL", c.Frontend.PublicBackendURL)
	}
	for _, o := range c.Api.AllowedOrigins {
		if o != "*" && !isHTTPURL(o) {
			return errors.Errorf("config: api.allowed_origins entry %q is not a valid origin", o)
		}
	}
	if c.Api.Ssl.Enabled && (c.Api.Ssl.CertificateFile == "" || c.Api.Ssl.KeyFile == "") {
		return errors.New("config: api.ssl requires both cert and key to be set")
	}
	return nil
}

func isHTTPURL(v string) bool {
	return govalidator.IsRequestURL(v) && (strings.HasPrefix(v, "http://") || strings.HasPrefix(v, "https://"))
}

// WriteToDisk writes the configuration to the path it was loaded from,
// creating the parent directory if needed. The file is only readable by the
// user running the process.
func (c *Configuration) WriteToDisk() error {
	if c.path == "" {
		return errors.New("config: cannot write configuration, no path defined in struct")
	}
	b, err := yaml.Marshal(c)
	if err != nil {
		return errors.WithStack(err)
	}
	if err := os.MkdirAll(filepath.Dir(c.path), 0o755); err != nil {
		return errors.Wrap(err, "config: failed to create directory")
	}
	if err := os.WriteFile(c.path, b, 0o600); err != nil {
		return errors.Wrap(err, "config: failed to write file")
	}
	return nil
}

// Path returns the location the configuration was loaded from.
func (c *Configuration) Path() string {
	return c.path
}

// PublicBackendURL returns the URL browsers should use for downloads.
func (c *Configuration) PublicBackendURL() string {
	return system.FirstNotEmpty(c.Frontend.PublicBackendURL, c.Frontend.BackendURL)
}

// Set the global configuration instance. This is a blocking operation such
// that anything trying to set a different configuration value, or read the
// configuration, will be paused until it is complete.
func Set(c *Configuration) {
	mu.Lock()
	_config = c
	mu.Unlock()
}

// Get returns a copy of the global configuration. Changes made to the copy
// are not persisted, use Update for that.
func Get() *Configuration {
	mu.RLock()
	defer mu.RUnlock()
	if _config == nil {
		return nil
	}
	c := *_config
	return &c
}

// Update performs an in-situ update of the global configuration object using
// the provided callback.
func Update(callback func(c *Configuration)) {
	mu.Lock()
	callback(_config)
	mu.Unlock()
}
