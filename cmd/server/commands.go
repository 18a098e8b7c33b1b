package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/warp/care-billing/api"
	"github.com/warp/care-billing/billing"
	"github.com/warp/care-billing/ledger"
)

func (a *app) summaryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "summary",
		Short: "Print the ledger summary as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			asOf := time.Now().UTC()
			if s, _ := cmd.Flags().GetString("as-of"); s != "" {
				t, err := time.Parse(time.DateOnly, s)
				if err != nil {
					return fmt.Errorf("--as-of must be YYYY-MM-DD: %w", err)
				}
				asOf = t
			}

			store, err := a.openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			invoices, err := store.ListInvoices(cmd.Context(), billing.InvoiceFilter{})
			if err != nil {
				return err
			}

			summary := a.newHandler(store).Ledger.Summarize(invoices, asOf)
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(api.NewSummaryDTO(summary))
		},
	}
	cmd.Flags().String("as-of", "", "Summary date YYYY-MM-DD (default today)")
	return cmd
}

func (a *app) exportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write every invoice as CSV",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := a.openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			invoices, err := store.ListInvoices(cmd.Context(), billing.InvoiceFilter{})
			if err != nil {
				return err
			}

			rows := ledger.ExportRows(invoices)
			path, _ := cmd.Flags().GetString("out")
			if path == "" {
				return api.WriteCSV(cmd.OutOrStdout(), rows)
			}

			f, err := os.Create(path)
			if err != nil {
				return err
			}
			if err := api.WriteCSV(f, rows); err != nil {
				f.Close()
				return err
			}
			return f.Close()
		},
	}
	cmd.Flags().String("out", "", "Output file (default stdout)")
	return cmd
}

func (a *app) migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending migrations and print their status",
		RunE: func(cmd *cobra.Command, args []string) error {
			// opening the store applies pending migrations
			store, err := a.openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			statuses, err := store.MigrationStatus(cmd.Context())
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			for _, st := range statuses {
				applied := "-"
				if !st.AppliedAt.IsZero() {
					applied = st.AppliedAt.UTC().Format(time.RFC3339)
				}
				fmt.Fprintf(w, "%05d  %-8s  %-20s  %s\n", st.Source.Version, st.State, applied, st.Source.Path)
			}
			return nil
		},
	}
}
