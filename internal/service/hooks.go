package service

import (
	"context"

	"github.com/sellershub/settlement-engine/internal/domain"
	"go.uber.org/zap"
)

// Notifier is the fire-and-forget hook invoked after payout state changes so
// dependent views (dashboards, caches) can refresh. Failures here never roll
// back or otherwise affect the payout outcome.
type Notifier interface {
	PayoutSettled(ctx context.Context, payout domain.PayoutRequest) error
}

// NopNotifier ignores all notifications.
type NopNotifier struct{}

func (NopNotifier) PayoutSettled(ctx context.Context, payout domain.PayoutRequest) error { return nil }

// SideEffect records the outcome of one best-effort action taken after the
// core outcome was decided. It exists so callers (and tests) can see that the
// core result never depended on a secondary update.
type SideEffect struct {
	Name string `json:"name"`
	Err  error  `json:"-"`
}

// OK reports whether the side effect succeeded.
func (s SideEffect) OK() bool { return s.Err == nil }

// runNotify invokes the notifier and converts its result into a SideEffect.
func runNotify(ctx context.Context, n Notifier, payout domain.PayoutRequest) SideEffect {
	if n == nil {
		return SideEffect{Name: "notify"}
	}
	err := n.PayoutSettled(ctx, payout)
	if err != nil {
		zap.L().Warn("payout notification hook failed",
			zap.Error(err),
			zap.String("payout_id", payout.ID.String()),
		)
	}
	return SideEffect{Name: "notify", Err: err}
}
