package chat

import (
	"context"
	"encoding/base64"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// File is a user-supplied upload at submit time. URL is the client's
// transient object reference, echoed back on the stored attachment so the
// client can render and later revoke it.
type File struct {
	Name     string
	MIMEType string
	Data     []byte
	URL      string
}

// SubmitRequest carries one user turn into the manager.
type SubmitRequest struct {
	// SessionID targets an existing session. Empty means "no active
	// session": one is created before the send proceeds.
	SessionID string
	Text      string
	Files     []File
	Thinking  bool
	Grounding GroundingTool

	// OnChunk, when set, observes every cumulative-text update applied to
	// the assistant placeholder, in emission order.
	OnChunk func(sessionID, messageID, cumulative string)
}

// SubmitResult reports the settled outcome of a submit.
type SubmitResult struct {
	SessionID        string   `json:"sessionId"`
	UserMessage      *Message `json:"userMessage"`
	AssistantMessage *Message `json:"assistantMessage"`
	SkippedFiles     int      `json:"skippedFiles,omitempty"`

	// Failed is true when the transport failed and AssistantMessage carries
	// ErrorReplyText instead of a real response.
	Failed bool `json:"failed,omitempty"`
}

// Config wires a Manager.
type Config struct {
	Transport Transport
	Store     Store // optional; persistence is skipped when nil
	Logger    *slog.Logger
	UserID    string // empty means unauthenticated: no persistence
	Plan      Plan
	Now       func() time.Time
	NewID     func() string

	// TitleTimeout bounds the asynchronous title-summary call.
	TitleTimeout time.Duration
}

// Manager owns a single user's session list and the lifecycle of submits
// against it. All state is guarded by one mutex; streaming callbacks take
// the lock per chunk, so overlapping async work never races on the message
// list. The busy flag enforces at most one in-flight generation per session.
type Manager struct {
	transport Transport
	store     Store
	logger    *slog.Logger
	userID    string
	plan      Plan
	now       func() time.Time
	newID     func() string
	titleTO   time.Duration

	mu       sync.Mutex
	sessions []*ChatSession // most-recent-first
	busy     map[string]bool
}

// NewManager builds a Manager. Transport is required.
func NewManager(cfg Config) *Manager {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.NewID == nil {
		cfg.NewID = uuid.NewString
	}
	if cfg.Plan == "" {
		cfg.Plan = PlanFree
	}
	if cfg.TitleTimeout <= 0 {
		cfg.TitleTimeout = 20 * time.Second
	}
	return &Manager{
		transport: cfg.Transport,
		store:     cfg.Store,
		logger:    cfg.Logger,
		userID:    cfg.UserID,
		plan:      cfg.Plan,
		now:       cfg.Now,
		newID:     cfg.NewID,
		titleTO:   cfg.TitleTimeout,
		busy:      make(map[string]bool),
	}
}

// Load hydrates the session list from the store. Missing state is not an
// error; the manager simply starts empty.
func (m *Manager) Load(ctx context.Context) error {
	if m.store == nil || m.userID == "" {
		return nil
	}
	sessions, err := m.store.LoadSessions(ctx, m.userID)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.sessions = sessions
	m.mu.Unlock()
	return nil
}

// Sessions returns a deep copy of the session list, most recent first.
func (m *Manager) Sessions() []*ChatSession {
	m.mu.Lock()
	defer m.mu.Unlock()
	return cloneSessions(m.sessions)
}

// Session returns a deep copy of one session.
func (m *Manager) Session(id string) (*ChatSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.findLocked(id)
	if s == nil {
		return nil, ErrSessionNotFound
	}
	return cloneSession(s), nil
}

// EnsureSession is the explicit first half of the two-step submit protocol:
// it returns the identified session, or creates a fresh one when id is
// empty. Creation and the lookup race under one mutex, so two rapid submits
// cannot both create; the first wins and the second targets its session.
func (m *Manager) EnsureSession(ctx context.Context, id string) (*ChatSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, err := m.ensureLocked(id)
	if err != nil {
		return nil, err
	}
	m.persistLocked(ctx)
	return cloneSession(s), nil
}

// RenameSession sets a session's title.
func (m *Manager) RenameSession(ctx context.Context, id, title string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.findLocked(id)
	if s == nil {
		return ErrSessionNotFound
	}
	s.Title = title
	m.persistLocked(ctx)
	return nil
}

// DeleteSession removes a session and returns the object URLs of every
// attachment it carried, so the client can revoke them instead of leaking
// them for the lifetime of the tab.
func (m *Manager) DeleteSession(ctx context.Context, id string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, s := range m.sessions {
		if s.ID != id {
			continue
		}
		if m.busy[id] {
			return nil, ErrBusy
		}
		var urls []string
		for _, msg := range s.Messages {
			for _, att := range msg.Attachments {
				if att.URL != "" {
					urls = append(urls, att.URL)
				}
			}
		}
		m.sessions = append(m.sessions[:i], m.sessions[i+1:]...)
		m.persistLocked(ctx)
		return urls, nil
	}
	return nil, ErrSessionNotFound
}

// SetPlan updates the plan applied to future submits. Billing changes flow
// in here between requests without rebuilding the manager.
func (m *Manager) SetPlan(p Plan) {
	if p == "" {
		p = PlanFree
	}
	m.mu.Lock()
	m.plan = p
	m.mu.Unlock()
}

// Busy reports whether a session has a generation in flight.
func (m *Manager) Busy(sessionID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.busy[sessionID]
}

// Submit runs one full user turn: append the user message and an assistant
// placeholder, stream the backend response into the placeholder, finalize
// it from the transport's authoritative full text, and kick off the title
// rewrite on a session's first exchange. Transport failures settle into
// ErrorReplyText on the placeholder and are reported via Failed, not as an
// error return. The busy flag is cleared on every path.
func (m *Manager) Submit(ctx context.Context, req SubmitRequest) (*SubmitResult, error) {
	text := strings.TrimSpace(req.Text)
	m.mu.Lock()
	maxBytes := MaxAttachmentBytes(m.plan)
	m.mu.Unlock()
	kept, skipped := partitionBySize(req.Files, maxBytes)
	if text == "" && len(kept) == 0 {
		return nil, ErrEmptySubmit
	}

	m.mu.Lock()
	s, err := m.ensureLocked(req.SessionID)
	if err != nil {
		m.mu.Unlock()
		return nil, err
	}
	if m.busy[s.ID] {
		m.mu.Unlock()
		return nil, ErrBusy
	}

	userMsg := &Message{
		ID:          m.newID(),
		Role:        RoleUser,
		Content:     text,
		Timestamp:   m.now(),
		Attachments: m.toAttachments(kept),
	}
	placeholder := &Message{
		ID:         m.newID(),
		Role:       RoleAssistant,
		Content:    "",
		Timestamp:  m.now(),
		IsThinking: true,
	}
	s.Messages = append(s.Messages, userMsg, placeholder)
	m.busy[s.ID] = true
	firstExchange := len(s.Messages) <= 2
	sessionID := s.ID
	m.persistLocked(ctx)
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		delete(m.busy, sessionID)
		m.persistLocked(context.WithoutCancel(ctx))
		m.mu.Unlock()
	}()

	streamReq := StreamRequest{
		Prompt:      text,
		Attachments: encodeFiles(kept),
		Thinking:    req.Thinking,
		Grounding:   req.Grounding,
	}
	result, streamErr := m.transport.Stream(ctx, streamReq, func(cumulative string) {
		m.mu.Lock()
		placeholder.Content = cumulative
		placeholder.IsThinking = false
		m.mu.Unlock()
		if req.OnChunk != nil {
			req.OnChunk(sessionID, placeholder.ID, cumulative)
		}
	})

	m.mu.Lock()
	if streamErr != nil {
		placeholder.Content = ErrorReplyText
		placeholder.IsThinking = false
		m.mu.Unlock()
		m.logger.Error("stream failed", "session_id", sessionID, "error", streamErr)
		return &SubmitResult{
			SessionID:        sessionID,
			UserMessage:      userMsg,
			AssistantMessage: placeholder,
			SkippedFiles:     skipped,
			Failed:           true,
		}, nil
	}
	// Final overwrite with the transport's authoritative full text. The last
	// chunk may be a partial duplicate and is never trusted here.
	placeholder.Content = result.FullText
	placeholder.IsThinking = false
	if len(result.Search) > 0 || len(result.Maps) > 0 {
		placeholder.Grounding = &GroundingMetadata{Search: result.Search, Maps: result.Maps}
	}
	m.mu.Unlock()

	if firstExchange {
		go m.rewriteTitle(sessionID, text)
	}

	return &SubmitResult{
		SessionID:        sessionID,
		UserMessage:      userMsg,
		AssistantMessage: placeholder,
		SkippedFiles:     skipped,
	}, nil
}

func (m *Manager) rewriteTitle(sessionID, firstText string) {
	ctx, cancel := context.WithTimeout(context.Background(), m.titleTO)
	defer cancel()
	title, err := m.transport.Title(ctx, firstText)
	if err != nil || title == "" {
		if err != nil {
			m.logger.Warn("title summary failed", "session_id", sessionID, "error", err)
		}
		return
	}
	m.mu.Lock()
	if s := m.findLocked(sessionID); s != nil {
		s.Title = title
		m.persistLocked(ctx)
	}
	m.mu.Unlock()
}

func (m *Manager) ensureLocked(id string) (*ChatSession, error) {
	if id != "" {
		if s := m.findLocked(id); s != nil {
			return s, nil
		}
		return nil, ErrSessionNotFound
	}
	s := &ChatSession{
		ID:        m.newID(),
		Title:     PlaceholderTitle,
		Messages:  []*Message{},
		CreatedAt: m.now(),
	}
	m.sessions = append([]*ChatSession{s}, m.sessions...)
	return s, nil
}

func (m *Manager) findLocked(id string) *ChatSession {
	for _, s := range m.sessions {
		if s.ID == id {
			return s
		}
	}
	return nil
}

// persistLocked writes the full session list through to the store. Store
// failures are logged, never surfaced: losing a persistence write must not
// break an otherwise healthy exchange.
func (m *Manager) persistLocked(ctx context.Context) {
	if m.store == nil || m.userID == "" {
		return
	}
	if err := m.store.SaveSessions(ctx, m.userID, m.sessions); err != nil {
		m.logger.Error("persist sessions failed", "user_id", m.userID, "error", err)
	}
}

func (m *Manager) toAttachments(files []File) []Attachment {
	if len(files) == 0 {
		return nil
	}
	atts := make([]Attachment, 0, len(files))
	for _, f := range files {
		atts = append(atts, Attachment{
			ID:       m.newID(),
			Type:     AttachmentTypeForMIME(f.MIMEType),
			URL:      f.URL,
			MIMEType: f.MIMEType,
		})
	}
	return atts
}

// partitionBySize drops files over the plan ceiling. Oversized files are a
// count-based notice for the caller, not an error.
func partitionBySize(files []File, maxBytes int64) (kept []File, skipped int) {
	for _, f := range files {
		if int64(len(f.Data)) > maxBytes {
			skipped++
			continue
		}
		kept = append(kept, f)
	}
	return kept, skipped
}

func encodeFiles(files []File) []EncodedAttachment {
	if len(files) == 0 {
		return nil
	}
	out := make([]EncodedAttachment, 0, len(files))
	for _, f := range files {
		out = append(out, EncodedAttachment{
			MIMEType: f.MIMEType,
			Data:     base64.StdEncoding.EncodeToString(f.Data),
		})
	}
	return out
}

func cloneSessions(in []*ChatSession) []*ChatSession {
	out := make([]*ChatSession, 0, len(in))
	for _, s := range in {
		out = append(out, cloneSession(s))
	}
	return out
}

func cloneSession(s *ChatSession) *ChatSession {
	c := &ChatSession{
		ID:        s.ID,
		Title:     s.Title,
		CreatedAt: s.CreatedAt,
		Messages:  make([]*Message, 0, len(s.Messages)),
	}
	for _, msg := range s.Messages {
		mc := *msg
		if msg.Attachments != nil {
			mc.Attachments = append([]Attachment(nil), msg.Attachments...)
		}
		if msg.Grounding != nil {
			g := *msg.Grounding
			g.Search = append([]Citation(nil), msg.Grounding.Search...)
			g.Maps = append([]Citation(nil), msg.Grounding.Maps...)
			mc.Grounding = &g
		}
		c.Messages = append(c.Messages, &mc)
	}
	return c
}
