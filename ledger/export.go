package ledger

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/care-billing/billing"
)

// ExportHeader names the ExportRow columns in Record order.
var ExportHeader = []string{"invoice_id", "client", "amount", "paid", "balance", "status", "period_end"}

// ExportRow is one invoice flattened for tabular output.
type ExportRow struct {
	InvoiceID billing.InvoiceID
	Client    string
	Amount    decimal.Decimal
	Paid      decimal.Decimal
	Balance   decimal.Decimal
	Status    string
	PeriodEnd *time.Time
}

// ExportRows flattens invoices in input order. Malformed invoices are
// exported as-is: an export is a record of what is stored, not a summary.
func ExportRows(invoices []billing.Invoice) []ExportRow {
	rows := make([]ExportRow, 0, len(invoices))
	for _, inv := range invoices {
		client := inv.ClientName
		if client == "" {
			client = GroupKey(inv)
		}
		rows = append(rows, ExportRow{
			InvoiceID: inv.ID,
			Client:    client,
			Amount:    inv.TotalAmount,
			Paid:      inv.PaidAmount(),
			Balance:   inv.BalanceRemaining(),
			Status:    string(inv.Status),
			PeriodEnd: inv.PeriodEnd,
		})
	}
	return rows
}

// Record renders the row as strings, money fixed to cents and the period
// end as a date.
func (r ExportRow) Record() []string {
	end := ""
	if r.PeriodEnd != nil {
		end = r.PeriodEnd.Format(time.DateOnly)
	}
	return []string{
		string(r.InvoiceID),
		r.Client,
		r.Amount.StringFixed(billing.CentPlaces),
		r.Paid.StringFixed(billing.CentPlaces),
		r.Balance.StringFixed(billing.CentPlaces),
		r.Status,
		end,
	}
}
