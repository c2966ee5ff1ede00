package cli

import (
	"context"
	"errors"
	"time"

	"github.com/spf13/cobra"

	app "github.com/okian/stride/internal/app"
	"github.com/okian/stride/internal/domain/race"
	"github.com/okian/stride/internal/domain/training"
	"github.com/okian/stride/internal/synth"
)

func newTrainCommand(opts *rootOptions) *cobra.Command {
	var activate bool
	cmd := &cobra.Command{
		Use:   "train <event>",
		Short: "Train and register a model for an event",
		Example: `  stridectl train 5k --activate
  stridectl train half_marathon`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withService(cmd, func(ctx context.Context, svc *app.Service) error {
				out, err := svc.Train(ctx, args[0], activate)
				if out != nil {
					if perr := printJSON(cmd.OutOrStdout(), out); perr != nil {
						return perr
					}
				}
				if err != nil {
					return err
				}
				if out.Status == training.StatusFailed {
					return errors.New(out.Message)
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&activate, "activate", false, "activate the winner if it meets min_activation_score")
	return cmd
}

func newActivateCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "activate <model-id>",
		Short: "Make a registered model the active one for its event",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withService(cmd, func(ctx context.Context, svc *app.Service) error {
				m, err := svc.Activate(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), m)
			})
		},
	}
}

func newPredictCommand(opts *rootOptions) *cobra.Command {
	var refresh bool
	cmd := &cobra.Command{
		Use:   "predict <user-id> <event>",
		Short: "Predict a finishing time",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withService(cmd, func(ctx context.Context, svc *app.Service) error {
				if refresh {
					if _, err := svc.RefreshFeatures(ctx, args[0]); err != nil {
						return err
					}
				}
				p, err := svc.Predict(ctx, args[0], args[1])
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), p)
			})
		},
	}
	cmd.Flags().BoolVar(&refresh, "refresh", false, "recompute features before predicting")
	return cmd
}

func newRefreshCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "refresh <user-id>...",
		Short: "Recompute and store feature vectors",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withService(cmd, func(ctx context.Context, svc *app.Service) error {
				for _, userID := range args {
					v, err := svc.RefreshFeatures(ctx, userID)
					if err != nil {
						return err
					}
					if err := printJSON(cmd.OutOrStdout(), v); err != nil {
						return err
					}
				}
				return nil
			})
		},
	}
}

func newCleanupCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "cleanup",
		Short: "Delete feature vectors older than feature_retention_days",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.withService(cmd, func(ctx context.Context, svc *app.Service) error {
				n, err := svc.Cleanup(ctx)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), map[string]int{"deleted": n})
			})
		},
	}
}

func newModelsCommand(opts *rootOptions) *cobra.Command {
	var event string
	cmd := &cobra.Command{
		Use:   "models",
		Short: "List registered models, newest version first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.withService(cmd, func(ctx context.Context, svc *app.Service) error {
				models, err := svc.Models(ctx, event)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), models)
			})
		},
	}
	cmd.Flags().StringVar(&event, "event", "", "only list models of this event")
	return cmd
}

func newSeedCommand(opts *rootOptions) *cobra.Command {
	var (
		users  int
		seed   int64
		event  string
		prefix string
	)
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Store synthetic users with workouts and one race result each",
		Long: `Generates reproducible synthetic histories for demos and smoke tests.
Each user's race time follows their training pace.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ev, err := race.Parse(event)
			if err != nil {
				return err
			}
			return opts.withService(cmd, func(ctx context.Context, svc *app.Service) error {
				cfg := synth.DefaultConfig(time.Now().UTC().AddDate(0, 0, -1))
				cfg.Users, cfg.Seed, cfg.RaceMeters, cfg.UserPrefix = users, seed, ev.DistanceMeters, prefix
				ds, err := synth.Generate(ctx, cfg)
				if err != nil {
					return err
				}
				db := svc.History()
				for _, p := range ds.Profiles {
					if err := db.PutProfile(ctx, p); err != nil {
						return err
					}
				}
				if err := db.AddRecords(ctx, ds.Records...); err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), map[string]any{
					"users":   len(ds.Profiles),
					"records": len(ds.Records),
					"event":   ev.Code,
				})
			})
		},
	}
	cmd.Flags().IntVar(&users, "users", 60, "number of users")
	cmd.Flags().Int64Var(&seed, "seed", 7, "random seed")
	cmd.Flags().StringVar(&event, "event", "5k", "race event of every user")
	cmd.Flags().StringVar(&prefix, "prefix", "synthetic", "user id prefix")
	return cmd
}
