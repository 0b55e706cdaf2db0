package config

import (
	"crypto/ecdsa"
	"os"
	"os/user"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pretzelio/pretzel/src/common"
	"github.com/sirupsen/logrus"
	prefixed "github.com/x-cray/logrus-prefixed-formatter"
)

// Default filenames.
const (
	// DefaultKeyfile is the default name of the file containing the worker's
	// private key
	DefaultKeyfile = "priv_key"

	// DefaultBadgerFile is the default name of the folder containing the
	// Badger database used by the disk-spill message store
	DefaultBadgerFile = "badger_db"

	// DefaultCertFile is the default name of the file containing the worker's
	// TLS certificate
	DefaultCertFile = "cert.pem"

	// DefaultCertKeyFile is the default name of the file containing the key
	// matching the TLS certificate
	DefaultCertKeyFile = "cert.key"

	// DefaultCAFile is the default name of the file containing the CA
	// certificate that worker certificates are verified against
	DefaultCAFile = "ca.pem"
)

// Default configuration values.
const (
	DefaultLogLevel                   = "debug"
	DefaultBindAddr                   = "127.0.0.1:7080"
	DefaultServiceAddr                = "127.0.0.1:8000"
	DefaultTCPTimeout                 = 1000 * time.Millisecond
	DefaultMaxPool                    = 2
	DefaultRequestRetries             = 3
	DefaultStore                      = false
	DefaultPartitions                 = 4
	DefaultTaskIndex                  = 0
	DefaultSimulateFirstRequestClosed = false
	DefaultTLS                        = false
)

// Config contains all the configuration properties of a pretzel worker.
type Config struct {
	// DataDir is the top-level directory containing pretzel configuration and
	// data
	DataDir string `mapstructure:"datadir"`

	// LogLevel determines the chattiness of the log output.
	LogLevel string `mapstructure:"log"`

	// BindAddr is the local address:port where this worker listens for
	// requests from other workers. In some cases, there may be a routable
	// address that cannot be bound. Use AdvertiseAddr to advertise a different
	// address to support this.
	BindAddr string `mapstructure:"listen"`

	// AdvertiseAddr is used to change the address that we advertise to other
	// workers.
	AdvertiseAddr string `mapstructure:"advertise"`

	// NoService disables the HTTP API service.
	NoService bool `mapstructure:"no-service"`

	// ServiceAddr is the address:port of the optional HTTP service. If not
	// specified, and "no-service" is not set, the API handlers are registered
	// with the DefaultServerMux of the http package. It is possible that
	// another server in the same process is simultaneously using the
	// DefaultServerMux. In which case, the handlers will be accessible from
	// both servers. This is useful when pretzel is used in-memory and expected
	// to use the same endpoint (address:port) as the application's API.
	ServiceAddr string `mapstructure:"service-listen"`

	// MaxPool controls how many connections are pooled per target worker in
	// the outbound request client.
	MaxPool int `mapstructure:"max-pool"`

	// TCPTimeout is the timeout of worker-to-worker connections.
	TCPTimeout time.Duration `mapstructure:"timeout"`

	// RequestRetries is how many times an outgoing request is attempted
	// before its error is surfaced. Retries reuse the original request id, so
	// receivers never apply a request twice.
	RequestRetries int `mapstructure:"request-retries"`

	// Store activates the disk-spill message store, which keeps incoming
	// messages in a Badger database instead of memory.
	Store bool `mapstructure:"store"`

	// DatabaseDir is the directory containing database files.
	DatabaseDir string `mapstructure:"db"`

	// JobID identifies the job this worker takes part in. It appears in logs
	// and stats. If not set, a random UUID is generated, which is only useful
	// for single-worker test setups.
	JobID string `mapstructure:"job-id"`

	// TaskIndex is the index of this worker within the job.
	TaskIndex int `mapstructure:"task-index"`

	// Partitions is the total number of vertex partitions in the job. It is
	// used by the default partition resolver to route messages.
	Partitions int `mapstructure:"partitions"`

	// SimulateFirstRequestClosed makes the worker drop the connection carrying
	// the first request it receives, before processing it. This exercises
	// client retry and the exactly-once request guarantee in integration
	// tests. Never enable it in production.
	SimulateFirstRequestClosed bool `mapstructure:"simulate-first-request-closed"`

	// TLS enables mutually-authenticated TLS on worker-to-worker connections.
	TLS bool `mapstructure:"tls"`

	// Moniker defines the friendly name of this worker.
	Moniker string `mapstructure:"moniker"`

	// Key is the private key of the worker.
	Key *ecdsa.PrivateKey

	logger *logrus.Logger
}

// NewDefaultConfig returns a config object with default values.
func NewDefaultConfig() *Config {
	config := &Config{
		DataDir:                    DefaultDataDir(),
		LogLevel:                   DefaultLogLevel,
		BindAddr:                   DefaultBindAddr,
		ServiceAddr:                DefaultServiceAddr,
		TCPTimeout:                 DefaultTCPTimeout,
		MaxPool:                    DefaultMaxPool,
		RequestRetries:             DefaultRequestRetries,
		Store:                      DefaultStore,
		DatabaseDir:                DefaultDatabaseDir(),
		JobID:                      uuid.New().String(),
		TaskIndex:                  DefaultTaskIndex,
		Partitions:                 DefaultPartitions,
		SimulateFirstRequestClosed: DefaultSimulateFirstRequestClosed,
		TLS:                        DefaultTLS,
	}

	return config
}

// NewTestConfig returns a config object with default values and a special
// logger for debugging tests.
func NewTestConfig(t testing.TB, level logrus.Level) *Config {
	config := NewDefaultConfig()
	config.logger = common.NewTestLogger(t, level)
	return config
}

// SetDataDir sets the top-level pretzel directory, and updates the database
// directory if it is currently set to the default value. If the database
// directory is not currently the default, it means the user has explicitly
// set it to something else, so avoid changing it again here.
func (c *Config) SetDataDir(dataDir string) {
	c.DataDir = dataDir
	if c.DatabaseDir == DefaultDatabaseDir() {
		c.DatabaseDir = filepath.Join(dataDir, DefaultBadgerFile)
	}
}

// Keyfile returns the full path of the file containing the private key.
func (c *Config) Keyfile() string {
	return filepath.Join(c.DataDir, DefaultKeyfile)
}

// CertFile returns the full path of the file containing the TLS certificate.
func (c *Config) CertFile() string {
	return filepath.Join(c.DataDir, DefaultCertFile)
}

// CertKeyFile returns the full path of the file containing the key matching
// the TLS certificate.
func (c *Config) CertKeyFile() string {
	return filepath.Join(c.DataDir, DefaultCertKeyFile)
}

// CAFile returns the full path of the file containing the CA certificate.
func (c *Config) CAFile() string {
	return filepath.Join(c.DataDir, DefaultCAFile)
}

// Logger returns a formatted logrus Entry, with prefix set to "pretzel".
func (c *Config) Logger() *logrus.Entry {
	if c.logger == nil {
		c.logger = logrus.New()
		c.logger.Level = LogLevel(c.LogLevel)
		c.logger.Formatter = new(prefixed.TextFormatter)
	}
	return c.logger.WithField("prefix", "pretzel")
}

// DefaultDatabaseDir returns the default path for the badger database files.
func DefaultDatabaseDir() string {
	return filepath.Join(DefaultDataDir(), DefaultBadgerFile)
}

// DefaultDataDir return the default directory name for top-level pretzel
// config based on the underlying OS, attempting to respect conventions.
func DefaultDataDir() string {
	// Try to place the data folder in the user's home dir
	home := HomeDir()
	if home != "" {
		if runtime.GOOS == "darwin" {
			return filepath.Join(home, ".Pretzel")
		} else if runtime.GOOS == "windows" {
			return filepath.Join(home, "AppData", "Roaming", "Pretzel")
		} else {
			return filepath.Join(home, ".pretzel")
		}
	}
	// As we cannot guess a stable location, return empty and handle later
	return ""
}

// HomeDir returns the user's home directory.
func HomeDir() string {
	if home := os.Getenv("HOME"); home != "" {
		return home
	}
	if usr, err := user.Current(); err == nil {
		return usr.HomeDir
	}
	return ""
}

// LogLevel parses a string into a Logrus log level.
func LogLevel(l string) logrus.Level {
	switch l {
	case "debug":
		return logrus.DebugLevel
	case "info":
		return logrus.InfoLevel
	case "warn":
		return logrus.WarnLevel
	case "error":
		return logrus.ErrorLevel
	case "fatal":
		return logrus.FatalLevel
	case "panic":
		return logrus.PanicLevel
	default:
		return logrus.DebugLevel
	}
}
