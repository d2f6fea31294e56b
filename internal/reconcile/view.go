package reconcile

import (
	"context"
	"strings"
	"sync"

	"talahum/internal/core"
)

// RowLoader produces the rows of a period.
type RowLoader interface {
	Load(ctx context.Context, p core.Period) ([]core.PeriodRow, error)
}

// Ticket identifies one load request of a View.
type Ticket struct {
	Generation uint64
	Period     core.Period
}

// View owns the rows displayed by one dashboard session. Only the result of
// the most recently begun load is ever applied.
type View struct {
	mu         sync.Mutex
	generation uint64
	period     core.Period
	rows       []core.PeriodRow
	rowsPeriod core.Period
	loaded     bool
}

func NewView(p core.Period) *View {
	return &View{period: p}
}

// Begin records p as the requested period and returns the ticket its result must carry.
func (v *View) Begin(p core.Period) Ticket {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.generation++
	v.period = p
	return Ticket{Generation: v.generation, Period: p}
}

// Apply installs rows loaded for t. It reports false, leaving the view
// untouched, when a newer load has begun since t was issued.
func (v *View) Apply(t Ticket, rows []core.PeriodRow) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	if t.Generation != v.generation {
		return false
	}
	v.rows = rows
	v.rowsPeriod = t.Period
	v.loaded = true
	return true
}

// Load begins a load of p and applies its result if still current. On error
// the displayed rows are left unchanged.
func (v *View) Load(ctx context.Context, loader RowLoader, p core.Period) (bool, error) {
	t := v.Begin(p)
	rows, err := loader.Load(ctx, p)
	if err != nil {
		return false, err
	}
	return v.Apply(t, rows), nil
}

// Period is the most recently requested period.
func (v *View) Period() core.Period {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.period
}

// Current reports the period of the displayed rows and whether any were loaded.
func (v *View) Current() (core.Period, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.rowsPeriod, v.loaded
}

func (v *View) Rows() []core.PeriodRow {
	v.mu.Lock()
	defer v.mu.Unlock()
	return cloneRows(v.rows)
}

// Summary is recomputed from the displayed rows on every call.
func (v *View) Summary() core.Summary {
	v.mu.Lock()
	defer v.mu.Unlock()
	return core.Summarize(v.rows)
}

// Find returns the displayed row of a subscriber.
func (v *View) Find(subscriberID int64) (core.PeriodRow, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	for _, r := range v.rows {
		if r.Subscriber.ID == subscriberID {
			return r, true
		}
	}
	return core.PeriodRow{}, false
}

// Filter returns the displayed rows whose name or phone contains q, ignoring case.
func (v *View) Filter(q string) []core.PeriodRow {
	return FilterRows(v.Rows(), q)
}

func FilterRows(rows []core.PeriodRow, q string) []core.PeriodRow {
	q = strings.ToLower(strings.TrimSpace(q))
	if q == "" {
		return rows
	}
	out := make([]core.PeriodRow, 0, len(rows))
	for _, r := range rows {
		if strings.Contains(strings.ToLower(r.Subscriber.Name), q) || strings.Contains(r.Subscriber.Phone, q) {
			out = append(out, r)
		}
	}
	return out
}
