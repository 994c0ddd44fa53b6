// Package cli implements the possum command-line interface.
package cli

import (
	"fmt"
	"os"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/mesh-intelligence/possum/internal/kinds"
	"github.com/mesh-intelligence/possum/internal/paths"
	"github.com/mesh-intelligence/possum/internal/sqlite"
	"github.com/mesh-intelligence/possum/pkg/types"
)

// Exit codes.
const (
	exitSuccess   = 0
	exitUserError = 1
	exitSysError  = 2
)

// app carries the state shared by one invocation's commands.
type app struct {
	configDirFlag string
	dataDirFlag   string
	verbose       bool

	configDir string
	v         *viper.Viper
	log       *zap.SugaredLogger
	kinds     *kinds.Set
	db        *sqlite.Backend
}

// NewRootCmd creates the "possum" command with every subcommand
// registered.
func NewRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:           "possum",
		Short:         "Polymorphic record and link store",
		Long:          "possum stores records of application-defined kinds in SQLite and\nrelates any two records through a typed, ranked link graph.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup()
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return a.close()
		},
	}

	root.PersistentFlags().StringVar(&a.configDirFlag, "config-dir", "", "configuration directory (default: $POSSUM_CONFIG_DIR or the user config dir)")
	root.PersistentFlags().StringVar(&a.dataDirFlag, "data-dir", "", "data directory (default: $(CWD)/.possum-db)")
	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "log debug output to stderr")

	root.AddCommand(
		newVersionCmd(),
		newInitCmd(a),
		newKindsCmd(a),
		newCreateCmd(a),
		newGetCmd(a),
		newDeleteCmd(a),
		newFindCmd(a),
		newCountCmd(a),
		newLinkCmd(a),
		newUnlinkCmd(a),
		newLinkedCmd(a),
		newTidyCmd(a),
		newMigrateCmd(a),
		newSettingCmd(a),
		newExportCmd(a),
		newImportCmd(a),
	)
	return root
}

// Execute runs the root command and exits with the code for its error.
func Execute() {
	root := NewRootCmd()
	err := root.Execute()
	if err == nil {
		os.Exit(exitSuccess)
	}
	fmt.Fprintln(os.Stderr, "possum:", err)
	os.Exit(exitCode(err))
}

// exitCode maps caller mistakes to exitUserError and everything else to
// exitSysError.
func exitCode(err error) int {
	for _, target := range []error{
		types.ErrValidation,
		types.ErrNotFound,
		types.ErrInvalidKind,
		types.ErrKindMismatch,
		types.ErrUninitializedEntity,
		types.ErrOutOfRange,
		errUsage,
	} {
		if errors.Is(err, target) {
			return exitUserError
		}
	}
	return exitSysError
}

var errUsage = errors.New("usage")

// usagef returns an error that exits with exitUserError.
func usagef(format string, args ...any) error {
	return errors.Mark(errors.Newf(format, args...), errUsage)
}

// setup resolves directories, reads config.yaml, builds the logger and
// loads the kind descriptors. The database is opened on demand.
func (a *app) setup() error {
	dir, err := paths.ResolveConfigDir(a.configDirFlag)
	if err != nil {
		return errors.Wrap(err, "resolving config dir")
	}
	a.configDir = dir

	v, err := loadConfig(dir)
	if err != nil {
		return err
	}
	a.v = v

	log, err := newLogger(a.verbose, v.GetBool(cfgKeyLogJSON))
	if err != nil {
		return errors.Wrap(err, "building logger")
	}
	a.log = log

	set, err := kinds.LoadDir(paths.KindsDir(dir))
	if err != nil {
		return err
	}
	a.kinds = set
	return nil
}

// backend attaches the database on first use.
func (a *app) backend() (*sqlite.Backend, error) {
	if a.db != nil {
		return a.db, nil
	}
	cfg, err := a.config()
	if err != nil {
		return nil, err
	}
	db := sqlite.NewBackend(sqlite.WithLogger(a.log))
	if err := db.Attach(cfg); err != nil {
		return nil, errors.Wrap(err, "attaching database")
	}
	a.db = db
	return db, nil
}

// config builds the backend configuration from config.yaml and the
// data-dir precedence chain.
func (a *app) config() (types.Config, error) {
	var cfg types.Config
	if err := a.v.Unmarshal(&cfg); err != nil {
		return cfg, errors.Wrap(err, "decoding config")
	}
	dataDir, err := paths.ResolveDataDir(a.dataDirFlag, a.v.GetString(cfgKeyDataDir))
	if err != nil {
		return cfg, errors.Wrap(err, "resolving data dir")
	}
	cfg.DataDir = dataDir
	return cfg, cfg.Validate()
}

func (a *app) kind(name string) (*types.Kind, error) {
	return a.kinds.Get(name)
}

func (a *app) close() error {
	if a.log != nil {
		defer a.log.Sync()
	}
	if a.db == nil {
		return nil
	}
	err := a.db.Detach()
	a.db = nil
	return err
}
