package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/petition-hub/petition-hub/internal/domain/journal"
	"github.com/petition-hub/petition-hub/internal/infrastructure/postgres"
)

const cliActor = "petitionctl"

func parseID(arg string) (int64, error) {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid id %q", arg)
	}
	return id, nil
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		RunE: withEngine(func(ctx context.Context, e *engine, _ *cobra.Command, _ []string) error {
			if err := postgres.RunMigrations(ctx, e.pool, e.cfg.MigrationsDir); err != nil {
				return err
			}
			fmt.Println("migrations applied")
			return nil
		}),
	}
}

func reconcileCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Recount petitions whose signature count is flagged as invalid",
		RunE: withEngine(func(ctx context.Context, e *engine, _ *cobra.Command, _ []string) error {
			n, err := e.counter.Reconcile(ctx, limit)
			if err != nil {
				return err
			}
			fmt.Printf("reconciled %d petitions\n", n)
			return nil
		}),
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 100, "maximum petitions to recount")
	return cmd
}

func journalsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "journals",
		Short: "Maintain the per-petition signature journals",
	}
	cmd.AddCommand(&cobra.Command{
		Use:       "reset <constituency|country|trending>",
		Short:     "Rebuild one journal kind from validated signatures",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"constituency", "country", "trending"},
		RunE: withEngine(func(ctx context.Context, e *engine, _ *cobra.Command, args []string) error {
			kind, err := journal.ParseKind(args[0])
			if err != nil {
				return err
			}
			rows, err := e.counter.ResetJournals(ctx, kind, cliActor)
			if err != nil {
				return err
			}
			fmt.Printf("rebuilt %d %s journal rows\n", rows, kind)
			return nil
		}),
	})
	return cmd
}

func invalidationCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "invalidation",
		Short: "Inspect and drive signature invalidations",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "show <id>",
		Short: "Print an invalidation",
		Args:  cobra.ExactArgs(1),
		RunE: withEngine(func(ctx context.Context, e *engine, _ *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			inv, err := e.invalidation.Get(ctx, id)
			if err != nil {
				return err
			}
			return printJSON(inv)
		}),
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "count <id>",
		Short: "Count the signatures a pending invalidation matches",
		Args:  cobra.ExactArgs(1),
		RunE: withEngine(func(ctx context.Context, e *engine, _ *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			inv, err := e.invalidation.Count(ctx, id)
			if err != nil {
				return err
			}
			fmt.Printf("invalidation %d matches %d signatures\n", inv.ID, inv.MatchingCount)
			return nil
		}),
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "start <id>",
		Short: "Queue an invalidation for the job worker",
		Args:  cobra.ExactArgs(1),
		RunE: withEngine(func(ctx context.Context, e *engine, _ *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			inv, err := e.invalidation.Start(ctx, id, cliActor)
			if err != nil {
				return err
			}
			fmt.Printf("invalidation %d is %s\n", inv.ID, inv.Status())
			return nil
		}),
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "run <id>",
		Short: "Run an invalidation in this process",
		Args:  cobra.ExactArgs(1),
		RunE: withEngine(func(ctx context.Context, e *engine, _ *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			if err := e.invalidation.Run(ctx, id); err != nil {
				return err
			}
			inv, err := e.invalidation.Get(ctx, id)
			if err != nil {
				return err
			}
			fmt.Printf("invalidation %d is %s, %d of %d signatures invalidated\n",
				inv.ID, inv.Status(), inv.InvalidatedCount, inv.MatchingCount)
			return nil
		}),
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "cancel <id>",
		Short: "Cancel an invalidation",
		Args:  cobra.ExactArgs(1),
		RunE: withEngine(func(ctx context.Context, e *engine, _ *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			inv, err := e.invalidation.Cancel(ctx, id, cliActor)
			if err != nil {
				return err
			}
			fmt.Printf("invalidation %d is %s\n", inv.ID, inv.Status())
			return nil
		}),
	})
	return cmd
}

func petitionsCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "petitions",
		Short: "Run petition lifecycle sweeps",
	}
	cmd.PersistentFlags().IntVarP(&limit, "limit", "n", 100, "maximum petitions per sweep")
	cmd.AddCommand(&cobra.Command{
		Use:   "close-due",
		Short: "Close open petitions past their deadline",
		RunE: withEngine(func(ctx context.Context, e *engine, _ *cobra.Command, _ []string) error {
			n, err := e.petitions.CloseDue(ctx, limit)
			if err != nil {
				return err
			}
			fmt.Printf("closed %d petitions\n", n)
			return nil
		}),
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "process-referrals",
		Short: "Refer or reject petitions closed for longer than the referral delay",
		RunE: withEngine(func(ctx context.Context, e *engine, _ *cobra.Command, _ []string) error {
			n, err := e.petitions.ProcessReferrals(ctx, limit)
			if err != nil {
				return err
			}
			fmt.Printf("processed %d petitions\n", n)
			return nil
		}),
	})
	return cmd
}
