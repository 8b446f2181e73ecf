// Package commands implements the onething command tree using Cobra.
package commands

import (
	"context"
	"errors"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/petal-labs/onething/cli/config"
	"github.com/petal-labs/onething/cli/jobstore"
	"github.com/petal-labs/onething/cli/keystore"
	"github.com/petal-labs/onething/providers/onething"
)

// ConfigLoader loads CLI config from a path.
type ConfigLoader func(path string) (*config.Config, error)

// ClientFactory creates an API client from the resolved key and config.
type ClientFactory func(apiKey string, cfg *config.Config, log *zap.Logger) (*onething.Client, error)

// KeystoreFactory creates a keystore instance.
type KeystoreFactory func() (keystore.Keystore, error)

// JobStoreFactory opens the local job ledger.
type JobStoreFactory func(path string) (*jobstore.Store, error)

// AppOption customizes App dependencies.
type AppOption func(*App)

// App holds CLI state and runtime dependencies.
type App struct {
	root *cobra.Command

	loadConfig  ConfigLoader
	newClient   ClientFactory
	newKeystore KeystoreFactory
	openJobs    JobStoreFactory
	getenv      func(string) string
	stdin       io.Reader
	stdout      io.Writer
	stderr      io.Writer

	cfgFile    string
	model      string
	jsonOutput bool
	verbose    bool

	cfg *config.Config
	log *zap.Logger
}

// WithConfigLoader injects a config loader dependency.
func WithConfigLoader(loader ConfigLoader) AppOption {
	return func(a *App) {
		if loader != nil {
			a.loadConfig = loader
		}
	}
}

// WithClientFactory injects the API client constructor.
func WithClientFactory(factory ClientFactory) AppOption {
	return func(a *App) {
		if factory != nil {
			a.newClient = factory
		}
	}
}

// WithKeystoreFactory injects a keystore factory dependency.
func WithKeystoreFactory(factory KeystoreFactory) AppOption {
	return func(a *App) {
		if factory != nil {
			a.newKeystore = factory
		}
	}
}

// WithJobStoreFactory injects the job ledger constructor.
func WithJobStoreFactory(factory JobStoreFactory) AppOption {
	return func(a *App) {
		if factory != nil {
			a.openJobs = factory
		}
	}
}

// WithEnv replaces os.Getenv for config and key lookup.
func WithEnv(getenv func(string) string) AppOption {
	return func(a *App) {
		if getenv != nil {
			a.getenv = getenv
		}
	}
}

// WithIO injects process I/O streams.
func WithIO(stdin io.Reader, stdout, stderr io.Writer) AppOption {
	return func(a *App) {
		if stdin != nil {
			a.stdin = stdin
		}
		if stdout != nil {
			a.stdout = stdout
		}
		if stderr != nil {
			a.stderr = stderr
		}
	}
}

// NewApp creates a new CLI app with default dependencies.
func NewApp(opts ...AppOption) *App {
	a := &App{
		loadConfig:  config.LoadConfig,
		newClient:   defaultClientFactory,
		newKeystore: keystore.NewKeystore,
		openJobs:    jobstore.Open,
		getenv:      os.Getenv,
		stdin:       os.Stdin,
		stdout:      os.Stdout,
		stderr:      os.Stderr,
		log:         zap.NewNop(),
	}

	for _, opt := range opts {
		opt(a)
	}

	a.root = a.newRootCommand()
	return a
}

func (a *App) newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "onething",
		Short: "onething - generate images, video and text from the command line",
		Long: `onething submits generation jobs to the inference service and tracks them.

Image and text requests return immediately; video jobs run asynchronously and
can be followed with 'onething jobs wait'. Submitted jobs are kept in a local
ledger so they can be listed later.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.initConfig()
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.SetIn(a.stdin)
	root.SetOut(a.stdout)
	root.SetErr(a.stderr)

	// Global flags available to all commands.
	root.PersistentFlags().StringVar(&a.cfgFile, "config", "", "config file, .yaml or .toml (default is ~/.onething/config.yaml)")
	root.PersistentFlags().StringVar(&a.model, "model", "", "model ID (overrides default_model)")
	root.PersistentFlags().BoolVar(&a.jsonOutput, "json", false, "emit JSON output")
	root.PersistentFlags().BoolVar(&a.verbose, "verbose", false, "enable debug logging")

	root.AddCommand(a.newImageCommand())
	root.AddCommand(a.newVideoCommand())
	root.AddCommand(a.newTextCommand())
	root.AddCommand(a.newJobsCommand())
	root.AddCommand(a.newKeysCommand())
	root.AddCommand(a.newVersionCommand())

	return root
}

// Execute runs the root command.
func (a *App) Execute() error {
	return a.ExecuteContext(context.Background())
}

// ExecuteContext runs the root command with ctx. Usage errors reported by
// cobra itself are mapped to ExitValidation.
func (a *App) ExecuteContext(ctx context.Context) error {
	err := a.root.ExecuteContext(ctx)
	if err == nil {
		return nil
	}
	var ee *exitError
	if errors.As(err, &ee) {
		return err
	}
	return a.handleError(exitWithCode(ExitValidation, err))
}

func (a *App) initConfig() error {
	path := a.cfgFile
	if path == "" {
		path = config.DefaultConfigPath()
	}

	cfg, err := a.loadConfig(path)
	if err != nil {
		return a.handleError(exitWithCode(ExitValidation, err))
	}
	if err := cfg.ApplyEnv(a.getenv); err != nil {
		return a.handleError(exitWithCode(ExitValidation, err))
	}
	a.cfg = cfg

	if a.model == "" && cfg.DefaultModel != "" {
		a.model = cfg.DefaultModel
	}

	a.log = newLogger(a.stderr, a.verbose)
	return nil
}

// run adapts a command body so every failure is reported once with its exit code.
func (a *App) run(fn func(cmd *cobra.Command, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		return a.handleError(fn(cmd, args))
	}
}

func (a *App) requireModel() (string, error) {
	if a.model == "" {
		return "", validationf("model required: use --model or set default_model in config")
	}
	return a.model, nil
}

// client resolves the API key (environment first, then keystore) and builds a client.
func (a *App) client() (*onething.Client, error) {
	apiKey := a.getenv(onething.APIKeyEnvVar)
	if apiKey == "" {
		ks, err := a.newKeystore()
		if err != nil {
			return nil, validationf("failed to open keystore: %w", err)
		}
		name := a.cfg.KeyName()
		apiKey, err = ks.Get(name)
		if err != nil {
			var nf *keystore.ErrKeyNotFound
			if errors.As(err, &nf) {
				return nil, validationf("no API key: set %s or run 'onething keys set %s'", onething.APIKeyEnvVar, name)
			}
			return nil, validationf("failed to read API key: %w", err)
		}
	}

	c, err := a.newClient(apiKey, a.cfg, a.log)
	if err != nil {
		return nil, exitWithCode(ExitValidation, err)
	}
	return c, nil
}

func defaultClientFactory(apiKey string, cfg *config.Config, log *zap.Logger) (*onething.Client, error) {
	opts := []onething.Option{
		onething.WithLogger(log),
		onething.WithUserAgent("onething-cli/" + Version),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, onething.WithBaseURL(cfg.BaseURL))
	}
	if cfg.Timeout > 0 {
		opts = append(opts, onething.WithTimeout(cfg.Timeout.Std()))
	}
	if cfg.MaxRetries != nil {
		opts = append(opts, onething.WithMaxRetries(*cfg.MaxRetries))
	}
	if cfg.RateLimit > 0 {
		opts = append(opts, onething.WithRateLimit(cfg.RateLimit, max(cfg.RateBurst, 1)))
	}
	return onething.New(apiKey, opts...)
}

// newLogger writes human-readable logs to w: warnings by default, debug
// output when verbose.
func newLogger(w io.Writer, verbose bool) *zap.Logger {
	level := zapcore.WarnLevel
	if verbose {
		level = zapcore.DebugLevel
	}
	encoderConfig := zap.NewDevelopmentEncoderConfig()
	encoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05.000")
	core := zapcore.NewCore(
		zapcore.NewConsoleEncoder(encoderConfig),
		zapcore.AddSync(w),
		level,
	)
	return zap.New(core)
}

// withJobs opens the ledger for the duration of fn.
func (a *App) withJobs(fn func(*jobstore.Store) error) error {
	store, err := a.openJobs(a.cfg.JobsPath())
	if err != nil {
		return err
	}
	defer store.Close()
	return fn(store)
}

// recordJob writes to the ledger. Ledger failures are logged and do not
// fail the command.
func (a *App) recordJob(ctx context.Context, rec jobstore.Record) {
	err := a.withJobs(func(s *jobstore.Store) error {
		return s.Save(ctx, rec)
	})
	if err != nil {
		a.log.Warn("failed to record job", zap.String("job_id", rec.ID), zap.Error(err))
	}
}

var defaultApp = NewApp()

// Execute runs the default app root command.
func Execute(ctx context.Context) error {
	return defaultApp.ExecuteContext(ctx)
}
