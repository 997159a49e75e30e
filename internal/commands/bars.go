package commands

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"spotstore/internal/domain"
	"spotstore/internal/ports"
)

// barFlags select a range of bars.
type barFlags struct {
	symbol string
	from   string
	to     string
	limit  int
}

func (f *barFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.symbol, "symbol", "s", "", "symbol to select")
	cmd.Flags().StringVar(&f.from, "from", "", "inclusive start (RFC3339 or YYYY-MM-DD)")
	cmd.Flags().StringVar(&f.to, "to", "", "exclusive end (RFC3339 or YYYY-MM-DD)")
}

func (f *barFlags) query() (ports.BarQuery, error) {
	from, err := parseTimeFlag("from", f.from)
	if err != nil {
		return ports.BarQuery{}, err
	}
	to, err := parseTimeFlag("to", f.to)
	if err != nil {
		return ports.BarQuery{}, err
	}
	return ports.BarQuery{Symbol: f.symbol, From: from, To: to, Limit: f.limit}, nil
}

func newBarsCmd(opts *globalOptions) *cobra.Command {
	flags := &barFlags{}
	cmd := &cobra.Command{
		Use:   "bars",
		Short: "Print stored bars",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			q, err := flags.query()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			s, err := openSession(ctx, cmd, opts)
			if err != nil {
				return err
			}
			defer s.Close()

			bars, err := s.svc.Bars(ctx, q)
			if err != nil {
				return err
			}
			return printBars(cmd.OutOrStdout(), bars)
		},
	}
	flags.register(cmd)
	cmd.Flags().IntVarP(&flags.limit, "limit", "n", 100, "maximum rows, 0 for all")
	cmd.MarkFlagRequired("symbol")
	return cmd
}

func printBars(out io.Writer, bars []domain.Bar) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSYMBOL\tOPEN TIME\tOPEN\tHIGH\tLOW\tCLOSE\tVOLUME\tVWAP\tTRADES")
	for _, b := range bars {
		trades := "-"
		if b.Trades.Valid {
			trades = fmt.Sprint(b.Trades.Int64)
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			b.ID, b.Symbol, b.OpenTime.UTC().Format(time.DateTime),
			cell(b.OpenPrice), cell(b.HighPrice), cell(b.LowPrice), cell(b.ClosePrice),
			cell(b.VolumeStock), cell(b.VWAP), trades)
	}
	return w.Flush()
}

func cell(v decimal.NullDecimal) string {
	if !v.Valid {
		return "-"
	}
	return v.Decimal.String()
}
