package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"chainnotes-sync-server/pkg/jwt"

	"github.com/spf13/cobra"
)

// oneShot runs fn against a fresh app without the HTTP layer.
func oneShot(cmd *cobra.Command, fn func(ctx context.Context, a *app) error) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}

	a, err := newApp(cmd.Context(), cfg, logger, nil)
	if err != nil {
		return err
	}
	defer a.Close()

	return fn(cmd.Context(), a)
}

func scanCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "scan",
		Short: "Run one indexer scan over the monitored addresses",
		RunE: func(cmd *cobra.Command, args []string) error {
			return oneShot(cmd, func(ctx context.Context, a *app) error {
				if err := a.indexer.Start(ctx); err != nil {
					return err
				}
				defer a.indexer.Stop()

				indexed := a.indexer.Scan(ctx)
				updated := a.indexer.UpdatePendingTransactions(ctx)
				fmt.Fprintf(cmd.OutOrStdout(), "indexed %d transactions, promoted %d pending\n", indexed, updated)
				return nil
			})
		},
	}
}

func reindexCommand() *cobra.Command {
	var from int64
	cmd := &cobra.Command{
		Use:   "reindex",
		Short: "Rescan the monitored addresses from a block height",
		RunE: func(cmd *cobra.Command, args []string) error {
			return oneShot(cmd, func(ctx context.Context, a *app) error {
				if err := a.indexer.Start(ctx); err != nil {
					return err
				}
				defer a.indexer.Stop()

				indexed, err := a.indexer.ReindexFromBlock(ctx, from)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "indexed %d transactions from block %d\n", indexed, from)
				return nil
			})
		},
	}
	cmd.Flags().Int64Var(&from, "from", 0, "block height to rescan from")
	return cmd
}

func syncCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Sweep outstanding tracked transactions once",
		RunE: func(cmd *cobra.Command, args []string) error {
			return oneShot(cmd, func(ctx context.Context, a *app) error {
				result := a.sync.Sweep(ctx)
				fmt.Fprintf(cmd.OutOrStdout(), "checked %d, confirmed %d, failed %d, expired %d, errors %d\n",
					result.Checked, result.Confirmed, result.Failed, result.Expired, result.Errors)
				if result.Errors > 0 {
					return errors.New("sweep finished with errors")
				}
				return nil
			})
		},
	}
}

func tokenCommand() *cobra.Command {
	var (
		subject string
		ttl     time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint an operator token for the protected endpoints",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := setup()
			if err != nil {
				return err
			}
			if ttl <= 0 {
				ttl = cfg.JWT.Expiration
			}
			token, err := jwt.GenerateToken(subject, ttl, cfg.JWT.Secret)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "operator", "token subject")
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "token lifetime, defaults to jwt.expiration")
	return cmd
}
