package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/alpha-ultimate/yusra/pkg/chat"
	"github.com/alpha-ultimate/yusra/pkg/gateway/apierror"
	"github.com/alpha-ultimate/yusra/pkg/gateway/auth"
	"github.com/alpha-ultimate/yusra/pkg/gateway/config"
	"github.com/alpha-ultimate/yusra/pkg/gateway/managers"
	"github.com/alpha-ultimate/yusra/pkg/settings"
	"github.com/alpha-ultimate/yusra/pkg/voice"
)

// liveInbound is every message the client can send on the live socket. The
// browser owns the actual recognition and synthesis devices; this socket
// carries their events to the controller and its directives back.
type liveInbound struct {
	Type       string `json:"type"`
	On         bool   `json:"on,omitempty"`
	SessionID  string `json:"sessionId,omitempty"`
	Transcript string `json:"transcript,omitempty"`
	Message    string `json:"message,omitempty"`
	ID         string `json:"id,omitempty"`
}

// LiveHandler upgrades /v1/live to a WebSocket and runs one voice controller
// per connection.
type LiveHandler struct {
	Config   config.Config
	Managers *managers.Registry
	Durable  settings.Store
	Fallback settings.Store
	Logger   *slog.Logger
}

func (h LiveHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeAPIError(w, r, http.StatusMethodNotAllowed, apierror.ErrInvalidRequest, "method not allowed")
		return
	}
	p, ok := auth.PrincipalFrom(r.Context())
	if !ok {
		writeAPIError(w, r, http.StatusUnauthorized, apierror.ErrAuthentication, "no principal")
		return
	}

	prefs := h.loadSettings(r.Context(), p)
	manager := h.Managers.For(r.Context(), p)

	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			// No allowlist means a same-host deployment; accept any origin.
			if len(h.Config.CORSAllowedOrigins) == 0 {
				return true
			}
			_, ok := h.Config.CORSAllowedOrigins[r.Header.Get("Origin")]
			return ok
		},
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.Logger.Warn("live upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	wc := &wsConn{conn: conn, writeTimeout: h.Config.LiveWriteTimeout}
	speaker := &wsSpeaker{conn: wc, pending: make(map[string]chan struct{})}
	dispatcher := &managerDispatcher{manager: manager}

	ctrl, err := voice.NewController(voice.Config{
		WakeWord:            prefs.WakeWord,
		AutoSpeak:           prefs.AutoSpeak,
		Logger:              h.Logger,
		ConversationTimeout: h.Config.VoiceConversationTimeout,
		RestartDelay:        h.Config.VoiceRestartDelay,
	}, &wsRecognizer{conn: wc}, speaker, dispatcher, &wsSink{conn: wc})
	if err != nil {
		h.Logger.Error("voice controller init failed", "error", err)
		return
	}
	defer ctrl.Close()
	defer speaker.releaseAll()

	stopPing := make(chan struct{})
	defer close(stopPing)
	go h.pingLoop(conn, stopPing)

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var msg liveInbound
		if err := json.Unmarshal(raw, &msg); err != nil {
			h.Logger.Warn("live message malformed", "error", err)
			continue
		}
		switch msg.Type {
		case "live_toggle":
			dispatcher.setSession(msg.SessionID)
			ctrl.ToggleLive(msg.On)
		case "recognizer_result":
			ctrl.HandleResult(msg.Transcript)
		case "recognizer_error":
			ctrl.HandleError(errString(msg.Message))
		case "recognizer_end":
			ctrl.HandleEnd()
		case "manual_result":
			ctrl.ManualResult(msg.Transcript)
		case "speech_done":
			speaker.finish(msg.ID)
		default:
			h.Logger.Warn("live message unknown", "type", msg.Type)
		}
	}
}

func (h LiveHandler) loadSettings(ctx context.Context, p *auth.Principal) settings.Settings {
	store := h.Fallback
	if p.Authenticated && h.Durable != nil {
		store = h.Durable
	}
	if store == nil {
		return settings.Defaults()
	}
	prefs, err := store.LoadSettings(ctx, p.UserID)
	if err != nil {
		h.Logger.Warn("load settings failed", "user_id", p.UserID, "error", err)
		return settings.Defaults()
	}
	return prefs
}

func (h LiveHandler) pingLoop(conn *websocket.Conn, stop <-chan struct{}) {
	ticker := time.NewTicker(h.Config.LivePingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			deadline := time.Now().Add(h.Config.LiveWriteTimeout)
			if err := conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				return
			}
		}
	}
}

type liveError struct{ msg string }

func (e liveError) Error() string { return e.msg }

func errString(msg string) error {
	if msg == "" {
		msg = "recognition error"
	}
	return liveError{msg: msg}
}

// wsConn serializes writes; gorilla connections allow one concurrent writer.
type wsConn struct {
	conn         *websocket.Conn
	writeTimeout time.Duration

	mu sync.Mutex
}

func (c *wsConn) writeJSON(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	return c.conn.WriteJSON(v)
}

type wsRecognizer struct {
	conn *wsConn
}

func (r *wsRecognizer) Start() error {
	return r.conn.writeJSON(map[string]string{"type": "listen_start"})
}

func (r *wsRecognizer) Stop() {
	_ = r.conn.writeJSON(map[string]string{"type": "listen_stop"})
}

// wsSpeaker asks the browser to synthesize. Each utterance carries an id;
// the client answers speech_done with the same id when playback settles.
type wsSpeaker struct {
	conn *wsConn

	mu      sync.Mutex
	pending map[string]chan struct{}
}

func (s *wsSpeaker) Speak(text string) (<-chan struct{}, error) {
	id := uuid.NewString()
	ch := make(chan struct{})
	s.mu.Lock()
	s.pending[id] = ch
	s.mu.Unlock()

	if err := s.conn.writeJSON(map[string]string{"type": "speak", "id": id, "text": text}); err != nil {
		s.finish(id)
		return nil, err
	}
	return ch, nil
}

func (s *wsSpeaker) Cancel() {
	_ = s.conn.writeJSON(map[string]string{"type": "speak_cancel"})
	s.releaseAll()
}

func (s *wsSpeaker) finish(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ch, ok := s.pending[id]; ok {
		close(ch)
		delete(s.pending, id)
	}
}

func (s *wsSpeaker) releaseAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, ch := range s.pending {
		close(ch)
		delete(s.pending, id)
	}
}

type wsSink struct {
	conn *wsConn
}

func (s *wsSink) StateChanged(snap voice.Snapshot) {
	_ = s.conn.writeJSON(struct {
		Type string `json:"type"`
		voice.Snapshot
	}{Type: "state", Snapshot: snap})
}

func (s *wsSink) Reply(text string) {
	_ = s.conn.writeJSON(map[string]string{"type": "reply", "text": text})
}

func (s *wsSink) Notice(text string) {
	_ = s.conn.writeJSON(map[string]string{"type": "notice", "text": text})
}

// managerDispatcher routes recognized commands into the session manager,
// exactly as a typed submission would go.
type managerDispatcher struct {
	manager *chat.Manager

	mu        sync.Mutex
	sessionID string
}

func (d *managerDispatcher) setSession(id string) {
	d.mu.Lock()
	d.sessionID = id
	d.mu.Unlock()
}

func (d *managerDispatcher) Dispatch(ctx context.Context, command string) (string, error) {
	d.mu.Lock()
	sessionID := d.sessionID
	d.mu.Unlock()

	result, err := d.manager.Submit(ctx, chat.SubmitRequest{
		SessionID: sessionID,
		Text:      command,
	})
	if err != nil {
		return "", err
	}

	// A dispatch with no session creates one; later turns stay in it.
	d.mu.Lock()
	d.sessionID = result.SessionID
	d.mu.Unlock()

	return result.AssistantMessage.Content, nil
}
