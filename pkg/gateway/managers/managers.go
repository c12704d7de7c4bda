// Package managers keeps one chat manager per user for the lifetime of the
// process. Authenticated users get the durable store; anonymous users get
// process-memory persistence that dies with their manager.
package managers

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/alpha-ultimate/yusra/pkg/chat"
	"github.com/alpha-ultimate/yusra/pkg/gateway/auth"
	"github.com/alpha-ultimate/yusra/pkg/store/memory"
)

type Config struct {
	Transport chat.Transport
	Logger    *slog.Logger

	// Durable is used for authenticated users. Nil means everyone falls back
	// to in-process storage.
	Durable chat.Store

	TitleTimeout time.Duration
}

type Registry struct {
	cfg      Config
	fallback *memory.Store

	mu      sync.Mutex
	entries map[string]*entry
}

// entry pairs a manager with its one-time hydration. Load replaces the
// manager's session list wholesale, so every caller must wait for it before
// touching the manager.
type entry struct {
	manager *chat.Manager
	hydrate sync.Once
}

func NewRegistry(cfg Config) *Registry {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Registry{
		cfg:      cfg,
		fallback: memory.New(),
		entries:  make(map[string]*entry),
	}
}

// For returns the principal's manager, creating and hydrating it on first
// use. Concurrent first requests block until hydration settles. The plan is
// refreshed on every call so billing changes apply without a restart.
func (r *Registry) For(ctx context.Context, p *auth.Principal) *chat.Manager {
	r.mu.Lock()
	e, ok := r.entries[p.UserID]
	if !ok {
		store := chat.Store(r.fallback)
		if p.Authenticated && r.cfg.Durable != nil {
			store = r.cfg.Durable
		}
		e = &entry{manager: chat.NewManager(chat.Config{
			Transport:    r.cfg.Transport,
			Store:        store,
			Logger:       r.cfg.Logger,
			UserID:       p.UserID,
			Plan:         p.Plan,
			TitleTimeout: r.cfg.TitleTimeout,
		})}
		r.entries[p.UserID] = e
	}
	r.mu.Unlock()

	e.hydrate.Do(func() {
		if err := e.manager.Load(ctx); err != nil {
			r.cfg.Logger.Error("load sessions failed", "user_id", p.UserID, "error", err)
		}
	})
	e.manager.SetPlan(p.Plan)
	return e.manager
}
