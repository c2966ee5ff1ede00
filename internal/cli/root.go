// Package cli implements stridectl, the one-shot operator CLI. Every
// command opens the same storage as the service, runs one operation and
// prints the result as JSON.
package cli

import (
	"context"
	"fmt"
	"io"

	json "github.com/goccy/go-json"
	"github.com/spf13/cobra"

	app "github.com/okian/stride/internal/app"
	"github.com/okian/stride/internal/config"
	"github.com/okian/stride/pkg/logger"
)

type rootOptions struct {
	configFile   string
	databasePath string
	artifactDir  string
	verbose      bool
}

// NewRootCommand builds the stridectl command tree.
func NewRootCommand() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:           "stridectl",
		Short:         "Operate the stride prediction pipeline",
		Long:          `Refresh features, train and activate models, and request predictions against stride storage.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&opts.configFile, "config", "", "YAML config file (default $STRIDE_CONFIG)")
	root.PersistentFlags().StringVar(&opts.databasePath, "db", "", "sqlite database path, overrides config")
	root.PersistentFlags().StringVar(&opts.artifactDir, "artifacts", "", "artifact directory, overrides config")
	root.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "log to stderr")

	root.AddCommand(
		newTrainCommand(opts),
		newActivateCommand(opts),
		newPredictCommand(opts),
		newRefreshCommand(opts),
		newCleanupCommand(opts),
		newModelsCommand(opts),
		newSeedCommand(opts),
	)
	return root
}

// Execute runs stridectl with the process arguments.
func Execute(ctx context.Context) error {
	return NewRootCommand().ExecuteContext(ctx)
}

func (o *rootOptions) load(ctx context.Context) (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if o.configFile != "" {
		cfg, err = config.LoadFile(ctx, o.configFile)
	} else {
		cfg, err = config.Load(ctx)
	}
	if err != nil {
		return nil, err
	}
	if o.databasePath != "" {
		cfg.DatabasePath = o.databasePath
	}
	if o.artifactDir != "" {
		cfg.ArtifactDir = o.artifactDir
	}
	// One-shot runs need neither background workers nor the cleanup loop.
	cfg.WorkerCount = 1
	cfg.CleanupInterval = 0
	return cfg, nil
}

// withService starts a service for the duration of fn.
func (o *rootOptions) withService(cmd *cobra.Command, fn func(ctx context.Context, svc *app.Service) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, err := o.load(ctx)
	if err != nil {
		return err
	}

	log := logger.Discard()
	if o.verbose {
		if err := logger.Init(logger.WithWriter(cmd.ErrOrStderr()), logger.WithJSON(cfg.LogJSON)); err != nil {
			return err
		}
		if err := logger.SetLevelString(cfg.LogLevel); err != nil {
			return err
		}
		log = logger.Get()
	}

	svc := app.New(app.WithConfig(cfg), app.WithLogger(log))
	if err := svc.Start(ctx); err != nil {
		return err
	}
	runErr := fn(ctx, svc)
	if err := svc.Stop(ctx); err != nil && runErr == nil {
		runErr = fmt.Errorf("stop: %w", err)
	}
	return runErr
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
