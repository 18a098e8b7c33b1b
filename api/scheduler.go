/*
scheduler.go - Automated overdue detection

PURPOSE:
  Invoices never become overdue on their own. This scheduler is the
  time-based process that periodically moves sent invoices whose billing
  period ended more than AfterDays ago to overdue.

DESIGN:
  - Runs a background goroutine with configurable check interval
  - Each sweep lists sent invoices with PeriodEnd before the cutoff and
    marks them overdue through billing.Service (compare-and-set)
  - An invoice paid or approved concurrently loses the race quietly: the
    conflict is counted, not treated as a failure
  - Sent invoices without a period end are never swept

CONFIGURATION:
  - AfterDays: Grace period after period end (default: 30)
  - CheckInterval: How often to check (default: 1 hour)
  - Enabled: Whether scheduler is active (default: true)

USAGE:
  scheduler := NewOverdueScheduler(store, service, logger)
  scheduler.Start()
  // ... later
  scheduler.Stop()

SEE ALSO:
  - handlers.go: RunOverdueSweep endpoint (manual sweep)
  - billing/status.go: MarkOverdue transition
*/
package api

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/warp/care-billing/billing"
)

// OverdueScheduler handles automated overdue detection.
type OverdueScheduler struct {
	Store         billing.InvoiceStore
	Billing       *billing.Service
	AfterDays     int
	CheckInterval time.Duration
	Enabled       bool
	Logger        zerolog.Logger
	Now           func() time.Time

	// lifecycle serializes Start and Stop, held across wg.Wait
	lifecycle sync.Mutex
	ticker    *time.Ticker
	stop      chan struct{}
	wg        sync.WaitGroup
	mu        sync.Mutex
	lastRun   *SweepResult
}

// SweepResult records one pass over the sent invoices.
type SweepResult struct {
	AsOf      time.Time
	Cutoff    time.Time
	Checked   int
	Marked    []billing.InvoiceID
	Conflicts int
	Failed    int
}

// NewOverdueScheduler creates a new scheduler.
func NewOverdueScheduler(store billing.InvoiceStore, svc *billing.Service, logger zerolog.Logger) *OverdueScheduler {
	return &OverdueScheduler{
		Store:         store,
		Billing:       svc,
		AfterDays:     30,
		CheckInterval: 1 * time.Hour,
		Enabled:       true,
		Logger:        logger,
		Now:           time.Now,
	}
}

// Start begins the scheduler.
func (s *OverdueScheduler) Start() {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.Enabled {
		s.Logger.Info().Msg("overdue scheduler disabled, not starting")
		return
	}
	if s.ticker != nil {
		return
	}

	s.ticker = time.NewTicker(s.CheckInterval)
	s.stop = make(chan struct{})
	s.wg.Add(1)

	go s.run(s.ticker, s.stop)

	s.Logger.Info().
		Dur("interval", s.CheckInterval).
		Int("after_days", s.AfterDays).
		Msg("overdue scheduler started")
}

// Stop stops the scheduler and waits for a running sweep to finish.
func (s *OverdueScheduler) Stop() {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()

	s.mu.Lock()
	ticker, stop := s.ticker, s.stop
	s.ticker, s.stop = nil, nil
	s.mu.Unlock()

	if ticker == nil {
		return
	}
	ticker.Stop()
	close(stop)
	s.wg.Wait()
	s.Logger.Info().Msg("overdue scheduler stopped")
}

func (s *OverdueScheduler) run(ticker *time.Ticker, stop <-chan struct{}) {
	defer s.wg.Done()

	// Run immediately on start
	s.RunNow()

	for {
		select {
		case <-ticker.C:
			s.RunNow()
		case <-stop:
			return
		}
	}
}

// RunNow sweeps once with the current time, logging instead of returning
// errors.
func (s *OverdueScheduler) RunNow() {
	if _, err := s.Sweep(context.Background(), s.Now()); err != nil {
		s.Logger.Error().Err(err).Msg("overdue sweep failed")
	}
}

// Sweep marks every sent invoice whose period ended before the cutoff as
// overdue. Individual failures are counted; only a failure to list
// invoices is returned.
func (s *OverdueScheduler) Sweep(ctx context.Context, asOf time.Time) (SweepResult, error) {
	cutoff := asOf.AddDate(0, 0, -s.AfterDays)
	result := SweepResult{AsOf: asOf, Cutoff: cutoff}

	candidates, err := s.Store.ListInvoices(ctx, billing.InvoiceFilter{
		Statuses:        []billing.InvoiceStatus{billing.StatusSent},
		PeriodEndBefore: &cutoff,
	})
	if err != nil {
		return result, err
	}
	result.Checked = len(candidates)

	for _, inv := range candidates {
		_, err := s.Billing.MarkOverdue(ctx, inv.ID)
		switch {
		case err == nil:
			result.Marked = append(result.Marked, inv.ID)
			s.Logger.Info().
				Str("invoice_id", string(inv.ID)).
				Time("period_end", *inv.PeriodEnd).
				Msg("invoice marked overdue")
		case billing.IsConflict(err):
			result.Conflicts++
			s.Logger.Debug().Err(err).Str("invoice_id", string(inv.ID)).Msg("invoice moved during sweep")
		default:
			result.Failed++
			s.Logger.Error().Err(err).Str("invoice_id", string(inv.ID)).Msg("failed to mark invoice overdue")
		}
	}

	s.mu.Lock()
	s.lastRun = &result
	s.mu.Unlock()

	s.Logger.Info().
		Time("cutoff", cutoff).
		Int("checked", result.Checked).
		Int("marked", len(result.Marked)).
		Int("conflicts", result.Conflicts).
		Int("failed", result.Failed).
		Msg("overdue sweep complete")
	return result, nil
}

// LastRun returns the most recent sweep result, if any.
func (s *OverdueScheduler) LastRun() (SweepResult, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.lastRun == nil {
		return SweepResult{}, false
	}
	return *s.lastRun, true
}

// GetNextRunTime returns when the next scheduled check will occur.
func (s *OverdueScheduler) GetNextRunTime() time.Time {
	return s.Now().Add(s.CheckInterval)
}

// SweepDTO is the JSON form of a SweepResult.
type SweepDTO struct {
	AsOf      string   `json:"as_of"`
	Cutoff    string   `json:"cutoff"`
	Checked   int      `json:"checked"`
	Marked    []string `json:"marked"`
	Conflicts int      `json:"conflicts"`
	Failed    int      `json:"failed"`
}

func toSweepDTO(r SweepResult) SweepDTO {
	marked := make([]string, len(r.Marked))
	for i, id := range r.Marked {
		marked[i] = string(id)
	}
	return SweepDTO{
		AsOf:      r.AsOf.UTC().Format(time.RFC3339),
		Cutoff:    r.Cutoff.UTC().Format(time.RFC3339),
		Checked:   r.Checked,
		Marked:    marked,
		Conflicts: r.Conflicts,
		Failed:    r.Failed,
	}
}
