package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func newMigrateCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the bar and latest tables",
		Long:  "Create the schema, bar table, latest table and id sequence if they do not exist",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			s, err := openSession(ctx, cmd, opts)
			if err != nil {
				return err
			}
			defer s.Close()

			if err := s.svc.Migrate(ctx); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Schema is up to date")
			return nil
		},
	}
}

func newInactiveCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "inactive",
		Short: "List symbols flagged inactive",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			s, err := openSession(ctx, cmd, opts)
			if err != nil {
				return err
			}
			defer s.Close()

			symbols, err := s.svc.Inactive(ctx)
			if err != nil {
				return err
			}
			for _, sym := range symbols {
				fmt.Fprintln(cmd.OutOrStdout(), sym)
			}
			return nil
		},
	}
}

func newReinstateCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "reinstate SYMBOL...",
		Short: "Flag symbols active again",
		Long: `Set active=true on the latest snapshot of each symbol.

Use this when a symbol was marked inactive by mistake, for example after a
data outage left it with a single stale bar. Symbols match exactly, case included.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			s, err := openSession(ctx, cmd, opts)
			if err != nil {
				return err
			}
			defer s.Close()

			symbols := make([]string, len(args))
			for i, a := range args {
				symbols[i] = strings.TrimSpace(a)
			}
			n, err := s.svc.Reinstate(ctx, symbols...)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Reinstated %d of %d symbol(s)\n", n, len(symbols))
			return nil
		},
	}
}
