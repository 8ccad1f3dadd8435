// Package quota admits analysis runs against per-user subscription budgets.
package quota

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/kailas-cloud/emsal/internal/domain"
	domquota "github.com/kailas-cloud/emsal/internal/domain/quota"
)

// Rejection reasons.
const (
	ReasonLimitReached = "limit reached"
	ReasonTrialExpired = "trial expired"
)

const refundTimeout = 2 * time.Second

// Gate charges one unit per run at admission and refunds runs that produced nothing.
type Gate struct {
	plans     PlanResolver
	store     LedgerStore
	locks     *keyedMutex
	now       func() time.Time
	decisions *prometheus.CounterVec
	logger    *zap.Logger
}

// NewGate creates a quota gate.
// decisions is a counter vec with labels "plan" and "decision", passed explicitly; may be nil.
func NewGate(plans PlanResolver, store LedgerStore, decisions *prometheus.CounterVec, logger *zap.Logger) *Gate {
	return &Gate{
		plans:     plans,
		store:     store,
		locks:     newKeyedMutex(),
		now:       time.Now,
		decisions: decisions,
		logger:    logger,
	}
}

// Admit reserves one search for userID. On rejection it returns a *domain.QuotaExceededError.
func (g *Gate) Admit(ctx context.Context, userID string) (*Ticket, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: user id is required", domain.ErrInvalidInput)
	}
	plan, err := g.plans.Resolve(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("resolve plan: %w", err)
	}

	unlock := g.locks.Lock(userID)
	defer unlock()

	now := g.now().UTC()
	var opened time.Time
	if plan.Window == domquota.WindowFixed {
		opened, err = g.store.Open(ctx, userID, plan.Name, now)
		if err != nil {
			return nil, fmt.Errorf("%w: open quota window: %w", domain.ErrUnavailable, err)
		}
	}
	b := bucket(userID, plan, now, opened)

	if plan.Window == domquota.WindowFixed && !now.Before(b.End) {
		used, err := g.store.Used(ctx, b)
		if err != nil {
			return nil, fmt.Errorf("%w: read quota: %w", domain.ErrUnavailable, err)
		}
		return nil, g.reject(userID, plan, used, ReasonTrialExpired)
	}

	used, ok, err := g.store.Reserve(ctx, b, plan.Limit)
	if err != nil {
		return nil, fmt.Errorf("%w: reserve quota: %w", domain.ErrUnavailable, err)
	}
	if !ok {
		return nil, g.reject(userID, plan, used, ReasonLimitReached)
	}

	g.inc(plan.Name, "admitted")
	g.logger.Debug("Quota admitted",
		zap.String("user_id", userID),
		zap.String("plan", plan.Name),
		zap.Int64("used", used),
		zap.Int64("limit", plan.Limit),
	)

	return &Ticket{
		gate:   g,
		bucket: b,
		ledger: ledger(b, plan, used),
		state:  TicketAdmitted,
	}, nil
}

// Ledger returns the user's current consumption without charging.
func (g *Gate) Ledger(ctx context.Context, userID string) (domquota.Ledger, error) {
	if userID == "" {
		return domquota.Ledger{}, fmt.Errorf("%w: user id is required", domain.ErrInvalidInput)
	}
	plan, err := g.plans.Resolve(ctx, userID)
	if err != nil {
		return domquota.Ledger{}, fmt.Errorf("resolve plan: %w", err)
	}

	now := g.now().UTC()
	var opened time.Time
	if plan.Window == domquota.WindowFixed {
		t, found, err := g.store.OpenedAt(ctx, userID, plan.Name)
		if err != nil {
			return domquota.Ledger{}, fmt.Errorf("%w: read quota window: %w", domain.ErrUnavailable, err)
		}
		if found {
			opened = t
		}
	}
	b := bucket(userID, plan, now, opened)

	used, err := g.store.Used(ctx, b)
	if err != nil {
		return domquota.Ledger{}, fmt.Errorf("%w: read quota: %w", domain.ErrUnavailable, err)
	}
	return ledger(b, plan, used), nil
}

func (g *Gate) reject(userID string, plan domquota.Plan, used int64, reason string) error {
	g.inc(plan.Name, "rejected")
	g.logger.Info("Quota rejected",
		zap.String("user_id", userID),
		zap.String("plan", plan.Name),
		zap.String("reason", reason),
		zap.Int64("used", used),
		zap.Int64("limit", plan.Limit),
	)
	return &domain.QuotaExceededError{
		UserID: userID,
		Plan:   plan.Name,
		Used:   used,
		Limit:  plan.Limit,
		Reason: reason,
	}
}

func (g *Gate) inc(plan, decision string) {
	if g.decisions != nil {
		g.decisions.WithLabelValues(plan, decision).Inc()
	}
}

func bucket(userID string, plan domquota.Plan, now, opened time.Time) domquota.Bucket {
	start, end := plan.Bounds(now, opened)
	return domquota.Bucket{UserID: userID, Plan: plan.Name, Start: start, End: end}
}

func ledger(b domquota.Bucket, plan domquota.Plan, used int64) domquota.Ledger {
	return domquota.Ledger{
		UserID:      b.UserID,
		Plan:        plan.Name,
		Used:        used,
		Limit:       plan.Limit,
		WindowStart: b.Start,
		WindowEnd:   b.End,
	}
}

// Refundable reports whether a run that ended with err produced nothing worth charging for.
func Refundable(err error) bool {
	return errors.Is(err, domain.ErrKeywordExtractionFailed) ||
		errors.Is(err, domain.ErrSearchUnavailable) ||
		errors.Is(err, domain.ErrDeadlineExceeded)
}

// TicketState is the lifecycle state of one admitted run.
type TicketState int

// Ticket states. A ticket starts Admitted and ends Completed or Failed.
const (
	TicketAdmitted TicketState = iota + 1
	TicketCompleted
	TicketFailed
)

func (s TicketState) String() string {
	switch s {
	case TicketAdmitted:
		return "admitted"
	case TicketCompleted:
		return "completed"
	case TicketFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Ticket is the charge for one admitted run.
type Ticket struct {
	gate   *Gate
	bucket domquota.Bucket

	mu     sync.Mutex
	ledger domquota.Ledger
	state  TicketState
}

// Ledger returns the ledger snapshot as of admission, adjusted for a refund.
func (t *Ticket) Ledger() domquota.Ledger {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.ledger
}

// State returns the ticket state.
func (t *Ticket) State() TicketState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Complete keeps the charge.
func (t *Ticket) Complete() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state == TicketAdmitted {
		t.state = TicketCompleted
	}
}

// Fail closes the ticket after a failed run and refunds the charge when
// Refundable(cause) holds. It reports whether a refund was made.
// The refund outlives ctx cancellation: a run that hit its deadline is still refunded.
func (t *Ticket) Fail(ctx context.Context, cause error) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state != TicketAdmitted {
		return false
	}
	t.state = TicketFailed
	if !Refundable(cause) {
		return false
	}

	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), refundTimeout)
	defer cancel()

	if err := t.gate.store.Release(rctx, t.bucket); err != nil {
		t.gate.logger.Warn("Failed to refund quota",
			zap.String("user_id", t.bucket.UserID),
			zap.String("plan", t.bucket.Plan),
			zap.Error(err),
		)
		return false
	}
	t.ledger.Used = max(0, t.ledger.Used-1)
	t.gate.inc(t.bucket.Plan, "refunded")
	return true
}
