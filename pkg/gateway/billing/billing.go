// Package billing maps users to subscription plans via Stripe. The plan
// decides the per-file attachment ceiling enforced by the chat manager.
package billing

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/stripe/stripe-go/v84"
	"github.com/stripe/stripe-go/v84/customer"
	"github.com/stripe/stripe-go/v84/subscription"

	"github.com/alpha-ultimate/yusra/pkg/chat"
)

// PlanResolver reports the plan a user is entitled to.
type PlanResolver interface {
	Resolve(ctx context.Context, email string) (chat.Plan, error)
}

// Free resolves every user to the free plan. Used when Stripe is not
// configured.
type Free struct{}

func (Free) Resolve(context.Context, string) (chat.Plan, error) {
	return chat.PlanFree, nil
}

// Stripe resolves plans from active subscriptions, matching price lookup
// keys to tiers. Lookups are cached; billing changes take effect within the
// cache TTL.
type Stripe struct {
	proKey     string
	quantumKey string
	ttl        time.Duration
	logger     *slog.Logger

	mu    sync.Mutex
	cache map[string]cachedPlan
}

type cachedPlan struct {
	plan    chat.Plan
	expires time.Time
}

type StripeConfig struct {
	APIKey           string
	ProLookupKey     string
	QuantumLookupKey string
	CacheTTL         time.Duration
	Logger           *slog.Logger
}

func NewStripe(cfg StripeConfig) *Stripe {
	stripe.Key = cfg.APIKey
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 5 * time.Minute
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Stripe{
		proKey:     cfg.ProLookupKey,
		quantumKey: cfg.QuantumLookupKey,
		ttl:        cfg.CacheTTL,
		logger:     cfg.Logger,
		cache:      make(map[string]cachedPlan),
	}
}

func (s *Stripe) Resolve(ctx context.Context, email string) (chat.Plan, error) {
	if email == "" {
		return chat.PlanFree, nil
	}

	s.mu.Lock()
	if c, ok := s.cache[email]; ok && time.Now().Before(c.expires) {
		s.mu.Unlock()
		return c.plan, nil
	}
	s.mu.Unlock()

	plan, err := s.lookup(ctx, email)
	if err != nil {
		// Billing outages must not block chat; fall back to free without
		// caching so the next request retries.
		s.logger.Warn("plan lookup failed", "email", email, "error", err)
		return chat.PlanFree, nil
	}

	s.mu.Lock()
	s.cache[email] = cachedPlan{plan: plan, expires: time.Now().Add(s.ttl)}
	s.mu.Unlock()
	return plan, nil
}

func (s *Stripe) lookup(ctx context.Context, email string) (chat.Plan, error) {
	searchParams := &stripe.CustomerSearchParams{
		SearchParams: stripe.SearchParams{
			Query:   `email:"` + email + `"`,
			Context: ctx,
		},
	}
	custIter := customer.Search(searchParams)

	best := chat.PlanFree
	for custIter.Next() {
		c := custIter.Customer()
		listParams := &stripe.SubscriptionListParams{
			Customer: stripe.String(c.ID),
			Status:   stripe.String(string(stripe.SubscriptionStatusActive)),
		}
		listParams.Context = ctx
		listParams.AddExpand("data.items.data.price")

		subIter := subscription.List(listParams)
		for subIter.Next() {
			for _, item := range subIter.Subscription().Items.Data {
				if item.Price == nil {
					continue
				}
				switch item.Price.LookupKey {
				case s.quantumKey:
					return chat.PlanQuantum, nil
				case s.proKey:
					best = chat.PlanPro
				}
			}
		}
		if err := subIter.Err(); err != nil {
			return chat.PlanFree, err
		}
	}
	if err := custIter.Err(); err != nil {
		return chat.PlanFree, err
	}
	return best, nil
}
