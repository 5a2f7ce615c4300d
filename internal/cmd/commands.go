package cmd

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"opsledger/backend/internal/domain"
	"opsledger/backend/internal/ledger"
)

func newSummaryCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "summary",
		Short: "Print dashboard figures for the ledger",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, snapshot, err := opts.load(cmd.Context())
			if err != nil {
				return err
			}
			summary := ledger.Summarize(snapshot, 0)
			out := cmd.OutOrStdout()
			if opts.asJSON {
				return printJSON(out, summary)
			}

			fmt.Fprintf(out, "Total sales:        %s\n", summary.TotalSales.StringFixed(2))
			fmt.Fprintf(out, "Total purchases:    %s\n", summary.TotalPurchases.StringFixed(2))
			fmt.Fprintf(out, "Total expenses:     %s\n", summary.TotalExpenses.StringFixed(2))
			fmt.Fprintf(out, "COGS:               %s\n", summary.COGS.StringFixed(2))
			fmt.Fprintf(out, "Net profit:         %s\n", summary.NetProfit.StringFixed(2))
			fmt.Fprintf(out, "Stock value:        %s (%d units)\n", summary.CurrentStockValue.StringFixed(2), summary.TotalUnitsInStock)
			fmt.Fprintf(out, "Main cash:          %s\n", summary.MainCashBalance.StringFixed(2))
			fmt.Fprintf(out, "Ad cash:            %s\n", summary.AdCashBalance.StringFixed(2))
			for _, courier := range domain.Couriers {
				fmt.Fprintf(out, "Receivable %-8s%s\n", string(courier)+":", summary.Receivables[courier].StringFixed(2))
			}
			for _, status := range []domain.OrderStatus{domain.OrderStatusPending, domain.OrderStatusShipped, domain.OrderStatusDelivered, domain.OrderStatusReturned} {
				fmt.Fprintf(out, "Orders %-12s%d\n", string(status)+":", summary.StatusCounts[status])
			}
			if len(summary.LowStockProducts) > 0 {
				fmt.Fprintln(out, "Low stock:")
				for _, p := range summary.LowStockProducts {
					fmt.Fprintf(out, "  %s (%d left)\n", p.Name, p.StockCount)
				}
			}
			return nil
		},
	}
}

func newVerifyCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "verify",
		Short: "Check that stored cash balances match the transaction log",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, snapshot, err := opts.load(cmd.Context())
			if err != nil {
				return err
			}
			rec := ledger.Reconcile(snapshot)
			out := cmd.OutOrStdout()
			if opts.asJSON {
				if err := printJSON(out, rec); err != nil {
					return err
				}
			} else {
				fmt.Fprintf(out, "Main cash: stored %s, from log %s\n", rec.MainCashBalance.StringFixed(2), rec.MainFromLog.StringFixed(2))
				fmt.Fprintf(out, "Ad cash:   stored %s, from log %s\n", rec.AdCashBalance.StringFixed(2), rec.AdFromLog.StringFixed(2))
			}
			if err := ledger.Verify(snapshot); err != nil {
				return err
			}
			if !opts.asJSON {
				fmt.Fprintln(out, "OK")
			}
			return nil
		},
	}
}

func newScanCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "scan <tracking-code>",
		Short: "Advance an order by its tracking code and save the snapshot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			fs, snapshot, err := opts.load(cmd.Context())
			if err != nil {
				return err
			}
			engine := ledger.NewEngine(snapshot)
			before := engine.Version()
			result, err := engine.ProcessScan(cmd.Context(), "ledgerctl", args[0])
			if err != nil {
				return err
			}
			if engine.Version() != before {
				if err := fs.SaveSnapshot(cmd.Context(), opts.ledgerID, engine.Snapshot()); err != nil {
					return fmt.Errorf("save %s: %w", opts.file, err)
				}
			}

			out := cmd.OutOrStdout()
			if opts.asJSON {
				return printJSON(out, result)
			}
			fmt.Fprintf(out, "[%s] %s\n", result.Type, result.Message)
			return nil
		},
	}
}

func newReceivableCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "receivable <courier>",
		Short: "Show what a courier still owes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, snapshot, err := opts.load(cmd.Context())
			if err != nil {
				return err
			}
			statement, err := ledger.CourierStatementFor(snapshot, domain.Courier(args[0]))
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if opts.asJSON {
				return printJSON(out, statement)
			}
			fmt.Fprintf(out, "%s delivered: %s\n", statement.Courier, statement.DeliveredValue.StringFixed(2))
			fmt.Fprintf(out, "%s collected: %s\n", statement.Courier, statement.Collected.StringFixed(2))
			fmt.Fprintf(out, "%s receivable: %s\n", statement.Courier, statement.Receivable.StringFixed(2))
			for _, p := range statement.Payments {
				fmt.Fprintf(out, "  %s  %s\n", p.Date, p.Amount.StringFixed(2))
			}
			return nil
		},
	}
}

func printJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
