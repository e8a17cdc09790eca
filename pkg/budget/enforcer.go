package budget

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/agroguard/agroguard/pkg/models"
	"github.com/agroguard/agroguard/pkg/tracker"
)

// ErrBudgetExceeded is returned when a provider has used up its token budget.
var ErrBudgetExceeded = errors.New("budget exceeded")

// Enforcer checks provider token usage against budget policies.
type Enforcer struct {
	policies []models.BudgetPolicy
	tracker  tracker.Tracker
}

// New creates an Enforcer with the given policies and tracker.
func New(policies []models.BudgetPolicy, t tracker.Tracker) *Enforcer {
	return &Enforcer{policies: policies, tracker: t}
}

// Check returns ErrBudgetExceeded if the provider has exceeded any policy
// applicable to the model. A nil Enforcer allows everything.
func (e *Enforcer) Check(ctx context.Context, provider, model string) error {
	if e == nil {
		return nil
	}
	for _, p := range e.applicablePolicies(provider, model) {
		used, err := e.used(ctx, p, provider)
		if err != nil {
			return fmt.Errorf("budget check: %w", err)
		}
		if used >= p.MaxTokens {
			return fmt.Errorf("%w: %s used %d of %d %s tokens", ErrBudgetExceeded, provider, used, p.MaxTokens, p.Period)
		}
	}
	return nil
}

// Status returns the budget status for a provider across all applicable policies.
func (e *Enforcer) Status(ctx context.Context, provider string) ([]models.BudgetStatus, error) {
	policies := e.policiesForProvider(provider)
	statuses := make([]models.BudgetStatus, 0, len(policies))

	for _, p := range policies {
		used, err := e.used(ctx, p, provider)
		if err != nil {
			return nil, fmt.Errorf("budget status: %w", err)
		}
		remaining := p.MaxTokens - used
		if remaining < 0 {
			remaining = 0
		}
		statuses = append(statuses, models.BudgetStatus{
			Policy:    p,
			Used:      used,
			Remaining: remaining,
		})
	}
	return statuses, nil
}

func (e *Enforcer) used(ctx context.Context, p models.BudgetPolicy, provider string) (int64, error) {
	since := periodStart(p.Period)
	if p.Model != "" {
		return e.tracker.TotalByProviderAndModel(ctx, provider, p.Model, since)
	}
	return e.tracker.TotalByProvider(ctx, provider, since)
}

// policiesForProvider returns all policies matching a provider (ignoring model filter).
func (e *Enforcer) policiesForProvider(provider string) []models.BudgetPolicy {
	var result []models.BudgetPolicy
	for _, p := range e.policies {
		if p.Provider == "*" || p.Provider == provider {
			result = append(result, p)
		}
	}
	return result
}

func (e *Enforcer) applicablePolicies(provider, model string) []models.BudgetPolicy {
	var result []models.BudgetPolicy
	for _, p := range e.policiesForProvider(provider) {
		if p.Model == "" || p.Model == model {
			result = append(result, p)
		}
	}
	return result
}

func periodStart(period models.BudgetPeriod) time.Time {
	now := time.Now().UTC()
	switch period {
	case models.BudgetMonthly:
		return time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	default: // daily
		return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	}
}
