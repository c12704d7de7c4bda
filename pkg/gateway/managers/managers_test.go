package managers

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alpha-ultimate/yusra/pkg/chat"
	"github.com/alpha-ultimate/yusra/pkg/gateway/auth"
)

type noopTransport struct{}

func (noopTransport) Stream(_ context.Context, _ chat.StreamRequest, _ func(string)) (*chat.StreamResult, error) {
	return &chat.StreamResult{FullText: "ok"}, nil
}
func (noopTransport) Title(context.Context, string) (string, error) { return "t", nil }
func (noopTransport) Speech(context.Context, string, string) ([]byte, error) {
	return nil, errors.New("not implemented")
}
func (noopTransport) Transcribe(context.Context, string, string) (string, error) {
	return "", errors.New("not implemented")
}
func (noopTransport) Analyze(context.Context, string, string, string) (string, error) {
	return "", errors.New("not implemented")
}
func (noopTransport) GenerateVideo(context.Context, string, string) (string, error) {
	return "", errors.New("not implemented")
}

// blockingStore parks LoadSessions until released, counting calls.
type blockingStore struct {
	release   chan struct{}
	loadCalls atomic.Int32
	stored    []*chat.ChatSession
}

func (s *blockingStore) LoadSessions(ctx context.Context, _ string) ([]*chat.ChatSession, error) {
	s.loadCalls.Add(1)
	select {
	case <-s.release:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return s.stored, nil
}

func (s *blockingStore) SaveSessions(context.Context, string, []*chat.ChatSession) error {
	return nil
}

func TestForWaitsForHydrationBeforeServing(t *testing.T) {
	store := &blockingStore{
		release: make(chan struct{}),
		stored: []*chat.ChatSession{{
			ID:        "stored",
			Title:     "Restored Chat",
			Messages:  []*chat.Message{},
			CreatedAt: time.Unix(1700000000, 0).UTC(),
		}},
	}
	reg := NewRegistry(Config{
		Transport: noopTransport{},
		Durable:   store,
	})
	p := &auth.Principal{UserID: "user_1", Authenticated: true}
	ctx := context.Background()

	first := make(chan *chat.Manager, 1)
	second := make(chan *chat.Manager, 1)
	go func() { first <- reg.For(ctx, p) }()
	go func() { second <- reg.For(ctx, p) }()

	// Neither caller may get the manager while hydration is in flight; a
	// session created now would be wholesale-replaced by the load.
	select {
	case <-first:
		t.Fatal("manager served before hydration settled")
	case <-second:
		t.Fatal("manager served before hydration settled")
	case <-time.After(50 * time.Millisecond):
	}

	close(store.release)

	var m1, m2 *chat.Manager
	for i := 0; i < 2; i++ {
		select {
		case m1 = <-first:
		case m2 = <-second:
		case <-time.After(2 * time.Second):
			t.Fatal("For never returned after hydration")
		}
	}
	if m1 != m2 {
		t.Fatal("concurrent callers got different managers")
	}
	if got := store.loadCalls.Load(); got != 1 {
		t.Fatalf("LoadSessions calls = %d, want 1", got)
	}

	sessions := m1.Sessions()
	if len(sessions) != 1 || sessions[0].ID != "stored" {
		t.Fatalf("sessions = %+v, want the hydrated session", sessions)
	}

	// Work after hydration is never clobbered.
	created, err := m1.EnsureSession(ctx, "")
	if err != nil {
		t.Fatalf("EnsureSession: %v", err)
	}
	sessions = m1.Sessions()
	if len(sessions) != 2 {
		t.Fatalf("sessions after create = %d, want 2", len(sessions))
	}
	found := false
	for _, s := range sessions {
		if s.ID == created.ID {
			found = true
		}
	}
	if !found {
		t.Fatal("created session lost after hydration")
	}
}

func TestForUsesFallbackForAnonymousUsers(t *testing.T) {
	store := &blockingStore{release: make(chan struct{})}
	close(store.release)
	reg := NewRegistry(Config{
		Transport: noopTransport{},
		Durable:   store,
	})

	reg.For(context.Background(), &auth.Principal{UserID: "anon_1"})
	if got := store.loadCalls.Load(); got != 0 {
		t.Fatalf("durable store touched %d times for anonymous user", got)
	}
}
