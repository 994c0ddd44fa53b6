package cli

import (
	"os"
	"path/filepath"

	"github.com/cockroachdb/errors"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"

	"github.com/mesh-intelligence/possum/internal/paths"
	"github.com/mesh-intelligence/possum/pkg/types"
)

// config.yaml keys.
const (
	cfgKeyBackend     = "backend"
	cfgKeyDataDir     = "data_dir"
	cfgKeyBusyTimeout = "busy_timeout"
	cfgKeyWindowSize  = "window_size"
	cfgKeyLanguage    = "language"
	cfgKeyLogJSON     = "log_json"
)

// configFile is the structure written to a new config.yaml.
type configFile struct {
	Backend     string `yaml:"backend"`
	DataDir     string `yaml:"data_dir,omitempty"`
	BusyTimeout int    `yaml:"busy_timeout"`
	WindowSize  int    `yaml:"window_size"`
	Language    string `yaml:"language"`
	LogJSON     bool   `yaml:"log_json"`
}

// loadConfig reads config.yaml from configDir, creating the directory and
// a default file on first run. Settings other than data_dir may also come
// from POSSUM_* environment variables.
func loadConfig(configDir string) (*viper.Viper, error) {
	if err := os.MkdirAll(configDir, 0o755); err != nil {
		return nil, errors.Wrap(err, "creating config dir")
	}
	if err := writeConfigIfMissing(paths.ConfigFile(configDir), ""); err != nil {
		return nil, err
	}

	v := viper.New()
	v.SetDefault(cfgKeyBackend, types.BackendSQLite)
	v.SetDefault(cfgKeyBusyTimeout, types.DefaultBusyTimeout)
	v.SetDefault(cfgKeyWindowSize, types.DefaultWindowSize)
	v.SetDefault(cfgKeyLanguage, types.DefaultLanguage)
	v.SetDefault(cfgKeyLogJSON, false)

	v.SetEnvPrefix("POSSUM")
	for _, key := range []string{cfgKeyBusyTimeout, cfgKeyWindowSize, cfgKeyLanguage, cfgKeyLogJSON} {
		if err := v.BindEnv(key); err != nil {
			return nil, errors.Wrapf(err, "binding %s", key)
		}
	}

	v.SetConfigFile(paths.ConfigFile(configDir))
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !os.IsNotExist(err) {
			return nil, errors.Wrap(err, "reading config")
		}
	}
	return v, nil
}

// writeConfigIfMissing creates config.yaml with default values. An existing
// file is left alone.
func writeConfigIfMissing(path, dataDir string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !os.IsNotExist(err) {
		return errors.Wrap(err, "checking config file")
	}

	data, err := yaml.Marshal(&configFile{
		Backend:     types.BackendSQLite,
		DataDir:     dataDir,
		BusyTimeout: types.DefaultBusyTimeout,
		WindowSize:  types.DefaultWindowSize,
		Language:    types.DefaultLanguage,
	})
	if err != nil {
		return errors.Wrap(err, "encoding config")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.Wrap(err, "creating config dir")
	}
	return errors.Wrap(os.WriteFile(path, data, 0o644), "writing config")
}

// newLogger builds the CLI logger. Without --verbose only warnings and
// errors are written.
func newLogger(verbose, jsonOutput bool) (*zap.SugaredLogger, error) {
	cfg := zap.NewProductionConfig()
	if verbose {
		cfg = zap.NewDevelopmentConfig()
	} else {
		cfg.Level = zap.NewAtomicLevelAt(zapcore.WarnLevel)
	}
	cfg.Encoding = "console"
	if jsonOutput {
		cfg.Encoding = "json"
	}
	cfg.OutputPaths = []string{"stderr"}
	cfg.ErrorOutputPaths = []string{"stderr"}
	if !jsonOutput {
		cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}

	l, err := cfg.Build()
	if err != nil {
		return nil, err
	}
	return l.Sugar(), nil
}
