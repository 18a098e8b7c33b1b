package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/warp/care-billing/billing"
)

// =============================================================================
// INVOICE STORE (billing.InvoiceStore interface)
// =============================================================================

var _ billing.InvoiceStore = (*Store)(nil)

// SaveInvoice inserts a new invoice with its line items and any payments
// it already carries, atomically. Saving an existing ID is a conflict.
func (s *Store) SaveInvoice(ctx context.Context, inv billing.Invoice) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if inv.CreatedAt.IsZero() {
		inv.CreatedAt = s.now()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO invoices
		(id, client_id, client_name, period_start, period_end, total_amount, status,
		 created_at, approved_at, overdue_at, paid_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		inv.ID, inv.ClientID, inv.ClientName,
		nullTime(inv.PeriodStart), nullTime(inv.PeriodEnd),
		inv.TotalAmount.String(), inv.Status,
		formatTime(inv.CreatedAt), nullTime(inv.ApprovedAt), nullTime(inv.OverdueAt), nullTime(inv.PaidAt),
	)
	if isUniqueConstraintError(err) {
		return billing.ErrConcurrentModification
	}
	if err != nil {
		return fmt.Errorf("failed to insert invoice: %w", err)
	}

	for i, li := range inv.Items {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO invoice_line_items
			(invoice_id, position, description, quantity, unit_price, amount, activity_id)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`,
			inv.ID, i, li.Description, li.Quantity.String(), li.UnitPrice.String(),
			li.Amount.String(), nullString(string(li.ActivityID)),
		)
		if err != nil {
			return fmt.Errorf("failed to insert line item %d: %w", i, err)
		}
	}

	for _, p := range inv.Payments {
		if err := s.insertPayment(ctx, tx, inv.ID, p); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// GetInvoice returns the invoice with items and payments.
func (s *Store) GetInvoice(ctx context.Context, id billing.InvoiceID) (*billing.Invoice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	invoices, err := s.queryInvoices(ctx, invoiceSelect+` WHERE id = ?`, id)
	if err != nil {
		return nil, err
	}
	if len(invoices) == 0 {
		return nil, billing.ErrInvoiceNotFound
	}
	return &invoices[0], nil
}

// ListInvoices returns invoices matching the filter, oldest first.
func (s *Store) ListInvoices(ctx context.Context, filter billing.InvoiceFilter) ([]billing.Invoice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var (
		where []string
		args  []any
	)
	if filter.ClientID != "" {
		where = append(where, "client_id = ?")
		args = append(args, filter.ClientID)
	}
	if len(filter.Statuses) > 0 {
		placeholders := make([]string, len(filter.Statuses))
		for i, st := range filter.Statuses {
			placeholders[i] = "?"
			args = append(args, st)
		}
		where = append(where, "status IN ("+strings.Join(placeholders, ", ")+")")
	}
	if filter.PeriodEndBefore != nil {
		where = append(where, "period_end IS NOT NULL")
	}

	query := invoiceSelect
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at ASC, id ASC"

	invoices, err := s.queryInvoices(ctx, query, args...)
	if err != nil {
		return nil, err
	}

	// Time comparison happens in Go: stored strings may carry different
	// fractional-second widths.
	if filter.PeriodEndBefore == nil {
		return invoices, nil
	}
	matched := invoices[:0]
	for _, inv := range invoices {
		if filter.Matches(inv) {
			matched = append(matched, inv)
		}
	}
	return matched, nil
}

// UpdateStatus applies the change only if the stored status is still
// change.From.
func (s *Store) UpdateStatus(ctx context.Context, change billing.StatusChange) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	column := ""
	switch change.To {
	case billing.StatusSent:
		column = "approved_at"
	case billing.StatusOverdue:
		column = "overdue_at"
	case billing.StatusPaid:
		column = "paid_at"
	}

	query := `UPDATE invoices SET status = ?`
	args := []any{change.To}
	if column != "" {
		query += ", " + column + " = ?"
		args = append(args, formatTime(change.At))
	}
	query += ` WHERE id = ? AND status = ?`
	args = append(args, change.InvoiceID, change.From)

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update invoice status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 1 {
		return nil
	}

	var exists int
	err = s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM invoices WHERE id = ?`, change.InvoiceID).Scan(&exists)
	if err != nil {
		return err
	}
	if exists == 0 {
		return billing.ErrInvoiceNotFound
	}
	return billing.ErrConcurrentModification
}

// AppendPayment adds a payment. Append-only.
func (s *Store) AppendPayment(ctx context.Context, id billing.InvoiceID, p billing.Payment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.insertPayment(ctx, s.db, id, p)
}

func (s *Store) insertPayment(ctx context.Context, db execer, id billing.InvoiceID, p billing.Payment) error {
	if p.CreatedAt.IsZero() {
		p.CreatedAt = s.now()
	}
	_, err := db.ExecContext(ctx, `
		INSERT INTO payments (id, invoice_id, amount, method, status, paid_at, reference, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`,
		p.ID, id, p.Amount.String(), p.Method, p.Status,
		nullTime(p.PaidAt), nullString(p.Reference), formatTime(p.CreatedAt),
	)
	switch {
	case isUniqueConstraintError(err):
		return billing.ErrDuplicatePayment
	case isForeignKeyError(err):
		return billing.ErrInvoiceNotFound
	case err != nil:
		return fmt.Errorf("failed to append payment: %w", err)
	}
	return nil
}

// =============================================================================
// LOADING
// =============================================================================

const invoiceSelect = `
	SELECT id, client_id, client_name, period_start, period_end, total_amount, status,
	       created_at, approved_at, overdue_at, paid_at
	FROM invoices`

func (s *Store) queryInvoices(ctx context.Context, query string, args ...any) ([]billing.Invoice, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query invoices: %w", err)
	}

	var invoices []billing.Invoice
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		invoices = append(invoices, inv)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	// Children are loaded after the header cursor is closed: an in-memory
	// database runs on a single connection.
	for i := range invoices {
		if invoices[i].Items, err = s.loadLineItems(ctx, s.db, invoices[i].ID); err != nil {
			return nil, err
		}
		if invoices[i].Payments, err = s.loadPayments(ctx, s.db, invoices[i].ID); err != nil {
			return nil, err
		}
	}
	return invoices, nil
}

func scanInvoice(row scanner) (billing.Invoice, error) {
	var (
		inv                           billing.Invoice
		periodStart, periodEnd        sql.NullString
		total, createdAt              string
		approvedAt, overdueAt, paidAt sql.NullString
	)
	err := row.Scan(&inv.ID, &inv.ClientID, &inv.ClientName, &periodStart, &periodEnd,
		&total, &inv.Status, &createdAt, &approvedAt, &overdueAt, &paidAt)
	if err != nil {
		return billing.Invoice{}, err
	}

	if inv.TotalAmount, err = parseDecimal(total); err != nil {
		return billing.Invoice{}, err
	}
	if inv.CreatedAt, err = parseTime(createdAt); err != nil {
		return billing.Invoice{}, err
	}
	for _, f := range []struct {
		dst **time.Time
		src sql.NullString
	}{
		{&inv.PeriodStart, periodStart},
		{&inv.PeriodEnd, periodEnd},
		{&inv.ApprovedAt, approvedAt},
		{&inv.OverdueAt, overdueAt},
		{&inv.PaidAt, paidAt},
	} {
		if *f.dst, err = parseNullTime(f.src); err != nil {
			return billing.Invoice{}, err
		}
	}
	return inv, nil
}

func (s *Store) loadLineItems(ctx context.Context, db querier, id billing.InvoiceID) ([]billing.LineItem, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT description, quantity, unit_price, amount, activity_id
		FROM invoice_line_items WHERE invoice_id = ? ORDER BY position ASC
	`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query line items: %w", err)
	}
	defer rows.Close()

	var items []billing.LineItem
	for rows.Next() {
		var (
			li                 billing.LineItem
			qty, price, amount string
			activityID         sql.NullString
		)
		if err := rows.Scan(&li.Description, &qty, &price, &amount, &activityID); err != nil {
			return nil, err
		}
		if li.Quantity, err = parseDecimal(qty); err != nil {
			return nil, err
		}
		if li.UnitPrice, err = parseDecimal(price); err != nil {
			return nil, err
		}
		if li.Amount, err = parseDecimal(amount); err != nil {
			return nil, err
		}
		li.ActivityID = billing.ActivityID(activityID.String)
		items = append(items, li)
	}
	return items, rows.Err()
}

func (s *Store) loadPayments(ctx context.Context, db querier, id billing.InvoiceID) ([]billing.Payment, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, amount, method, status, paid_at, reference, created_at
		FROM payments WHERE invoice_id = ? ORDER BY created_at ASC, rowid ASC
	`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query payments: %w", err)
	}
	defer rows.Close()

	var payments []billing.Payment
	for rows.Next() {
		var (
			p                 billing.Payment
			amount, createdAt string
			paidAt, reference sql.NullString
		)
		if err := rows.Scan(&p.ID, &amount, &p.Method, &p.Status, &paidAt, &reference, &createdAt); err != nil {
			return nil, err
		}
		if p.Amount, err = parseDecimal(amount); err != nil {
			return nil, err
		}
		if p.PaidAt, err = parseNullTime(paidAt); err != nil {
			return nil, err
		}
		if p.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, err
		}
		p.Reference = reference.String
		payments = append(payments, p)
	}
	return payments, rows.Err()
}
