package types

import "github.com/cockroachdb/errors"

// Config holds backend selection and parameters for Database.Attach.
type Config struct {
	Backend string `json:"backend" yaml:"backend" mapstructure:"backend"`

	// DataDir holds possum.db. The special value ":memory:" opens a private
	// in-memory database.
	DataDir string `json:"data_dir" yaml:"data_dir" mapstructure:"data_dir"`

	// BusyTimeout is the SQLite lock wait in milliseconds. Zero means
	// DefaultBusyTimeout.
	BusyTimeout int `json:"busy_timeout" yaml:"busy_timeout" mapstructure:"busy_timeout"`

	// WindowSize is the default cursor window. Zero means DefaultWindowSize.
	WindowSize int `json:"window_size" yaml:"window_size" mapstructure:"window_size"`

	// Language is the BCP 47 tag used for translations. Empty means en-US.
	Language string `json:"language" yaml:"language" mapstructure:"language"`
}

// Supported backend names.
const (
	BackendSQLite = "sqlite"
)

// Defaults applied by the getters below.
const (
	DefaultBusyTimeout = 15000
	DefaultWindowSize  = 32
	DefaultLanguage    = "en-US"
	MemoryDataDir      = ":memory:"
)

// Config validation errors.
var (
	ErrBackendEmpty       = errors.New("backend must not be empty")
	ErrBackendUnknown     = errors.New("unknown backend")
	ErrBusyTimeoutInvalid = errors.New("busy timeout must not be negative")
	ErrWindowSizeInvalid  = errors.New("window size must not be negative")
)

var knownBackends = map[string]bool{
	BackendSQLite: true,
}

// Validate checks that the Config is well-formed.
func (c Config) Validate() error {
	if c.Backend == "" {
		return ErrBackendEmpty
	}
	if !knownBackends[c.Backend] {
		return errors.Wrapf(ErrBackendUnknown, "%q", c.Backend)
	}
	if c.BusyTimeout < 0 {
		return ErrBusyTimeoutInvalid
	}
	if c.WindowSize < 0 {
		return ErrWindowSizeInvalid
	}
	return nil
}

// GetBusyTimeout returns the busy timeout in milliseconds.
func (c Config) GetBusyTimeout() int {
	if c.BusyTimeout == 0 {
		return DefaultBusyTimeout
	}
	return c.BusyTimeout
}

// GetWindowSize returns the cursor window size.
func (c Config) GetWindowSize() int {
	if c.WindowSize == 0 {
		return DefaultWindowSize
	}
	return c.WindowSize
}

// GetLanguage returns the translation language tag.
func (c Config) GetLanguage() string {
	if c.Language == "" {
		return DefaultLanguage
	}
	return c.Language
}
