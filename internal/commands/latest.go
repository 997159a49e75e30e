package commands

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"spotstore/internal/domain"
)

func newLatestCmd(opts *globalOptions) *cobra.Command {
	var symbol string
	cmd := &cobra.Command{
		Use:   "latest",
		Short: "Print latest snapshots",
		Long:  "Print the latest snapshot of one symbol, or of every symbol when --symbol is omitted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			s, err := openSession(ctx, cmd, opts)
			if err != nil {
				return err
			}
			defer s.Close()

			snaps, err := s.svc.Latest(ctx, symbol)
			if err != nil {
				return err
			}
			return printLatest(cmd.OutOrStdout(), snaps)
		},
	}
	cmd.Flags().StringVarP(&symbol, "symbol", "s", "", "symbol to show")
	return cmd
}

func printLatest(out io.Writer, snaps []domain.LatestSnapshot) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "SYMBOL\tID\tLATEST CLOSE\tACTIVE\tSOURCE")
	for _, s := range snaps {
		id, closeAt, active, source := "-", "-", "-", "-"
		if s.BarID.Valid {
			id = fmt.Sprint(s.BarID.Int64)
		}
		if s.LatestClose.Valid {
			closeAt = s.LatestClose.Time.UTC().Format(time.DateTime)
		}
		if s.Active.Valid {
			active = fmt.Sprint(s.Active.Bool)
		}
		if s.Source.Valid {
			source = s.Source.String
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", s.Symbol, id, closeAt, active, source)
	}
	return w.Flush()
}
