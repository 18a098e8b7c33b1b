package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/warp/care-billing/billing"
	"github.com/warp/care-billing/rates"
)

// =============================================================================
// CLIENTS
// =============================================================================

// SaveClient inserts or updates a client. CreatedAt is kept from the first
// insert.
func (s *Store) SaveClient(ctx context.Context, c billing.Client) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	if c.Status == "" {
		c.Status = billing.ClientActive
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO clients (id, name, email, phone, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			email = excluded.email,
			phone = excluded.phone,
			status = excluded.status,
			updated_at = excluded.updated_at
	`,
		c.ID, c.Name, nullString(c.Email), nullString(c.Phone), c.Status,
		formatTime(c.CreatedAt), formatTime(now),
	)
	if err != nil {
		return fmt.Errorf("failed to save client: %w", err)
	}
	return nil
}

// GetClient returns the client or billing.ErrClientNotFound.
func (s *Store) GetClient(ctx context.Context, id billing.ClientID) (*billing.Client, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, email, phone, status, created_at, updated_at
		FROM clients WHERE id = ?
	`, id)

	c, err := scanClient(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, billing.ErrClientNotFound
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// ListClients returns clients ordered by name. Inactive clients are
// included only when asked for.
func (s *Store) ListClients(ctx context.Context, includeInactive bool) ([]billing.Client, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `SELECT id, name, email, phone, status, created_at, updated_at FROM clients`
	if !includeInactive {
		query += ` WHERE status = 'active'`
	}
	query += ` ORDER BY name ASC, id ASC`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query clients: %w", err)
	}
	defer rows.Close()

	var clients []billing.Client
	for rows.Next() {
		c, err := scanClient(rows)
		if err != nil {
			return nil, err
		}
		clients = append(clients, c)
	}
	return clients, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanClient(row scanner) (billing.Client, error) {
	var (
		c                    billing.Client
		email, phone         sql.NullString
		createdAt, updatedAt string
	)
	if err := row.Scan(&c.ID, &c.Name, &email, &phone, &c.Status, &createdAt, &updatedAt); err != nil {
		return billing.Client{}, err
	}
	c.Email = email.String
	c.Phone = phone.String

	var err error
	if c.CreatedAt, err = parseTime(createdAt); err != nil {
		return billing.Client{}, err
	}
	if c.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return billing.Client{}, err
	}
	return c, nil
}

// =============================================================================
// RULE SETS
// =============================================================================

const (
	scopeOrg    = "org"
	scopeClient = "client"
)

// GetOrgDefault returns the organization rule set. An organization that
// never saved one has an empty rule set: every field falls back to the
// system default.
func (s *Store) GetOrgDefault(ctx context.Context) (rates.RuleSet, error) {
	rs, err := s.getRuleSet(ctx, scopeOrg, "")
	if err != nil || rs == nil {
		return rates.RuleSet{}, err
	}
	return *rs, nil
}

// SaveOrgDefault replaces the organization rule set.
func (s *Store) SaveOrgDefault(ctx context.Context, rs rates.RuleSet) error {
	return s.saveRuleSet(ctx, scopeOrg, "", rs)
}

// GetOverride returns the client's override, or nil when the client has
// none.
func (s *Store) GetOverride(ctx context.Context, id billing.ClientID) (*rates.RuleSet, error) {
	return s.getRuleSet(ctx, scopeClient, string(id))
}

// SaveOverride replaces the client's override.
func (s *Store) SaveOverride(ctx context.Context, id billing.ClientID, rs rates.RuleSet) error {
	if _, err := s.GetClient(ctx, id); err != nil {
		return err
	}
	return s.saveRuleSet(ctx, scopeClient, string(id), rs)
}

// ClearOverride removes the client's override so every field inherits.
func (s *Store) ClearOverride(ctx context.Context, id billing.ClientID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx,
		`DELETE FROM rule_sets WHERE scope = ? AND client_id = ?`, scopeClient, id)
	if err != nil {
		return fmt.Errorf("failed to clear override: %w", err)
	}
	return nil
}

func (s *Store) getRuleSet(ctx context.Context, scope, clientID string) (*rates.RuleSet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var rulesJSON string
	err := s.db.QueryRowContext(ctx,
		`SELECT rules_json FROM rule_sets WHERE scope = ? AND client_id = ?`, scope, clientID,
	).Scan(&rulesJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load %s rule set: %w", scope, err)
	}

	rs, err := s.rules.ParseRuleSet(rulesJSON)
	if err != nil {
		return nil, fmt.Errorf("stored %s rule set: %w", scope, err)
	}
	return &rs, nil
}

func (s *Store) saveRuleSet(ctx context.Context, scope, clientID string, rs rates.RuleSet) error {
	if err := rs.Validate(); err != nil {
		return err
	}
	rulesJSON, err := s.rules.Marshal(rs)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO rule_sets (scope, client_id, rules_json, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(scope, client_id) DO UPDATE SET
			rules_json = excluded.rules_json,
			updated_at = excluded.updated_at
	`, scope, clientID, rulesJSON, formatTime(s.now()))
	if err != nil {
		return fmt.Errorf("failed to save %s rule set: %w", scope, err)
	}
	return nil
}
