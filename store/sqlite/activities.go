package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/warp/care-billing/billing"
)

// =============================================================================
// ACTIVITIES
// =============================================================================

// SaveActivity records a billable activity. Activities are immutable: saving
// an existing ID fails.
func (s *Store) SaveActivity(ctx context.Context, a billing.Activity) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if a.CreatedAt.IsZero() {
		a.CreatedAt = s.now()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO activities (id, client_id, started_at, duration_minutes, description, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`,
		a.ID, a.ClientID, formatTime(a.StartedAt), a.DurationMinutes,
		nullString(a.Description), formatTime(a.CreatedAt),
	)
	switch {
	case isForeignKeyError(err):
		return billing.ErrClientNotFound
	case isUniqueConstraintError(err):
		return fmt.Errorf("activity %s already exists", a.ID)
	case err != nil:
		return fmt.Errorf("failed to save activity: %w", err)
	}
	return nil
}

// ListActivities returns a client's activities in the period, oldest first.
// The period end day is included in full.
func (s *Store) ListActivities(ctx context.Context, clientID billing.ClientID, period billing.Period) ([]billing.Activity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	from := period.Start.AddDate(0, 0, -1)
	to := period.End.AddDate(0, 0, 2)
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, client_id, started_at, duration_minutes, description, created_at
		FROM activities
		WHERE client_id = ? AND started_at >= ? AND started_at < ?
		ORDER BY started_at ASC, id ASC
	`, clientID, formatTime(from), formatTime(to))
	if err != nil {
		return nil, fmt.Errorf("failed to query activities: %w", err)
	}
	defer rows.Close()

	// The SQL window is widened by a day on each side to absorb time zone
	// offsets; Contains applies the exact calendar bounds.
	var activities []billing.Activity
	for rows.Next() {
		var (
			a                    billing.Activity
			description          sql.NullString
			startedAt, createdAt string
		)
		if err := rows.Scan(&a.ID, &a.ClientID, &startedAt, &a.DurationMinutes, &description, &createdAt); err != nil {
			return nil, err
		}
		a.Description = description.String
		if a.StartedAt, err = parseTime(startedAt); err != nil {
			return nil, err
		}
		if a.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, err
		}
		if period.Contains(a.StartedAt.In(period.Start.Location())) {
			activities = append(activities, a)
		}
	}
	return activities, rows.Err()
}
