package main

import (
	"context"
	"fmt"
	"time"

	"kinship/internal/database"
	"kinship/internal/repository"
	"kinship/internal/seed"
	"kinship/internal/service"
	"kinship/internal/storage"

	"github.com/spf13/cobra"
)

func newSeedCmd(e *env) *cobra.Command {
	var (
		opts      seed.Options
		seedValue int64
		clean     bool
	)

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Fill the database with generated demo data",
		RunE: func(cmd *cobra.Command, args []string) error {
			return e.withFactory(cmd.Context(), clean, seedValue, func(ctx context.Context, f *seed.Factory) error {
				sum, err := f.Populate(ctx, opts)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "seeded %d users, %d posts, %d comments, %d replies, %d relations\n",
					sum.Users, sum.Posts, sum.Comments, sum.Replies, sum.Relations)
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&opts.Users, "users", 10, "number of users")
	cmd.Flags().IntVar(&opts.Posts, "posts", 30, "number of posts")
	cmd.Flags().IntVar(&opts.FollowsPerUser, "follows", 3, "users each user follows")
	cmd.Flags().IntVar(&opts.CommentsPerPost, "comments", 3, "maximum comments per post")
	cmd.Flags().IntVar(&opts.RepliesPerComment, "replies", 2, "maximum replies per comment")
	cmd.PersistentFlags().Int64Var(&seedValue, "seed", time.Now().UnixNano(), "random seed for generated content")
	cmd.PersistentFlags().BoolVar(&clean, "clean", false, "drop every table before seeding")

	scenario := &cobra.Command{
		Use:   "scenario <file.yml>",
		Short: "Create the users, content and relations described in a YAML file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sc, err := seed.LoadScenarioFile(args[0])
			if err != nil {
				return err
			}
			return e.withFactory(cmd.Context(), clean, seedValue, func(ctx context.Context, f *seed.Factory) error {
				res, err := f.ApplyScenario(ctx, sc)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "scenario applied: %d users, %d posts, %d comments, %d replies, %d relations\n",
					len(res.Users), len(res.Posts), len(res.Comments), len(res.Replies), len(sc.Relations))
				return nil
			})
		},
	}
	cmd.AddCommand(scenario)
	return cmd
}

// withFactory brings the schema up to date and runs fn with a Factory over
// the configured database and blob store.
func (e *env) withFactory(ctx context.Context, clean bool, seedValue int64, fn func(context.Context, *seed.Factory) error) error {
	if clean && e.cfg.IsProduction() {
		return fmt.Errorf("refusing to clean the database in %q", e.cfg.Env)
	}

	db, closeDB, err := e.openDB()
	if err != nil {
		return err
	}
	defer closeDB()

	if clean {
		if err := database.MigrateDown(db, 0); err != nil {
			return err
		}
	}
	if err := database.ApplySchema(ctx, db, e.cfg); err != nil {
		return err
	}

	blobs, err := storage.NewBlobStoreFromConfig(ctx, e.cfg, db)
	if err != nil {
		return err
	}

	f := seed.NewFactory(service.Deps{
		Repos:          repository.NewRepositories(db),
		Tx:             repository.NewTransactor(db),
		Blobs:          blobs,
		MaxUploadBytes: e.cfg.ImageMaxUploadBytes(),
	}, seedValue)
	return fn(ctx, f)
}
