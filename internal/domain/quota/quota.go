// Package quota models subscription plans and per-user search ledgers.
package quota

import (
	"fmt"
	"time"
)

// WindowKind selects how a plan's counting window is computed.
type WindowKind string

// Window kinds.
const (
	// WindowDay resets at 00:00 UTC.
	WindowDay WindowKind = "day"
	// WindowMonth resets on the first day of the calendar month, UTC.
	WindowMonth WindowKind = "month"
	// WindowFixed opens at the first admission and never reopens (trials).
	WindowFixed WindowKind = "fixed"
)

// Plan is a subscription tier. A zero Limit means unlimited.
type Plan struct {
	Name     string        `json:"name"`
	Limit    int64         `json:"limit"`
	Window   WindowKind    `json:"window"`
	Duration time.Duration `json:"duration,omitempty"`
}

// Unlimited reports whether the plan never rejects.
func (p Plan) Unlimited() bool { return p.Limit <= 0 }

// Validate checks plan consistency.
func (p Plan) Validate() error {
	if p.Name == "" {
		return fmt.Errorf("plan name is required")
	}
	if p.Limit < 0 {
		return fmt.Errorf("plan %s: limit must be >= 0", p.Name)
	}
	switch p.Window {
	case WindowDay, WindowMonth:
	case WindowFixed:
		if p.Duration <= 0 {
			return fmt.Errorf("plan %s: fixed window requires a positive duration", p.Name)
		}
	default:
		return fmt.Errorf("plan %s: unknown window %q", p.Name, p.Window)
	}
	return nil
}

// Bounds returns the [start, end) counting window containing now.
// opened is the first admission time and is used only by fixed windows;
// a zero opened means the window opens now.
func (p Plan) Bounds(now, opened time.Time) (time.Time, time.Time) {
	now = now.UTC()
	switch p.Window {
	case WindowFixed:
		if opened.IsZero() {
			opened = now
		}
		opened = opened.UTC()
		return opened, opened.Add(p.Duration)
	case WindowMonth:
		start := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
		return start, start.AddDate(0, 1, 0)
	default:
		start := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
		return start, start.AddDate(0, 0, 1)
	}
}

// Ledger is a snapshot of one user's consumption in the current window.
type Ledger struct {
	UserID      string    `json:"user_id"`
	Plan        string    `json:"plan"`
	Used        int64     `json:"used"`
	Limit       int64     `json:"limit"`
	WindowStart time.Time `json:"window_start"`
	WindowEnd   time.Time `json:"window_end"`
}

// Unlimited reports whether the ledger has no cap.
func (l Ledger) Unlimited() bool { return l.Limit <= 0 }

// Remaining returns searches left in the window, or -1 when unlimited.
func (l Ledger) Remaining() int64 {
	if l.Unlimited() {
		return -1
	}
	return max(0, l.Limit-l.Used)
}

// Expired reports whether the window has closed at now.
func (l Ledger) Expired(now time.Time) bool {
	return !l.WindowEnd.IsZero() && !now.Before(l.WindowEnd)
}

// Bucket identifies one user's counter for one plan window.
type Bucket struct {
	UserID string
	Plan   string
	Start  time.Time
	End    time.Time
}

// ID returns a stable identifier for the bucket.
func (b Bucket) ID() string {
	return fmt.Sprintf("%s:%s:%d", b.UserID, b.Plan, b.Start.Unix())
}
