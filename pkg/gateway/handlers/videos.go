package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/alpha-ultimate/yusra/pkg/chat"
	"github.com/alpha-ultimate/yusra/pkg/gateway/apierror"
	"github.com/alpha-ultimate/yusra/pkg/gateway/auth"
)

// videoJobTimeout bounds a single Veo generation end to end.
const videoJobTimeout = 10 * time.Minute

// VideoTracker runs video generation jobs in the background and answers
// status polls. Jobs are scoped to the owning user.
type VideoTracker struct {
	Transport chat.Transport
	Logger    *slog.Logger

	mu   sync.Mutex
	jobs map[string]*videoJob
}

type videoJob struct {
	owner string
	state chat.VideoJob
}

func NewVideoTracker(transport chat.Transport, logger *slog.Logger) *VideoTracker {
	if logger == nil {
		logger = slog.Default()
	}
	return &VideoTracker{
		Transport: transport,
		Logger:    logger,
		jobs:      make(map[string]*videoJob),
	}
}

// Start launches a job and returns its id immediately.
func (t *VideoTracker) Start(owner, prompt, aspectRatio string) chat.VideoJob {
	id := uuid.NewString()
	job := &videoJob{owner: owner, state: chat.VideoJob{ID: id}}
	accepted := job.state
	t.mu.Lock()
	t.jobs[id] = job
	t.mu.Unlock()

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), videoJobTimeout)
		defer cancel()
		uri, err := t.Transport.GenerateVideo(ctx, prompt, aspectRatio)

		t.mu.Lock()
		job.state.Done = true
		if err != nil {
			// Message is generic; full detail stays in the log.
			job.state.Errmsg = "video generation failed"
			t.mu.Unlock()
			t.Logger.Error("video job failed", "job_id", id, "error", err)
			return
		}
		job.state.URI = uri
		t.mu.Unlock()
	}()

	return accepted
}

// Get returns the job state, or false when the job does not exist or belongs
// to another user.
func (t *VideoTracker) Get(owner, id string) (chat.VideoJob, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	job, ok := t.jobs[id]
	if !ok || job.owner != owner {
		return chat.VideoJob{}, false
	}
	return job.state, true
}

// VideosHandler starts video jobs.
type VideosHandler struct {
	Tracker *VideoTracker
}

func (h VideosHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeAPIError(w, r, http.StatusMethodNotAllowed, apierror.ErrInvalidRequest, "method not allowed")
		return
	}
	p, ok := auth.PrincipalFrom(r.Context())
	if !ok {
		writeAPIError(w, r, http.StatusUnauthorized, apierror.ErrAuthentication, "no principal")
		return
	}
	var body struct {
		Prompt      string `json:"prompt"`
		AspectRatio string `json:"aspectRatio,omitempty"`
	}
	if !decodeJSON(w, r, &body) {
		return
	}
	if body.Prompt == "" {
		writeAPIError(w, r, http.StatusBadRequest, apierror.ErrInvalidRequest, "prompt must not be empty")
		return
	}
	writeJSON(w, http.StatusAccepted, h.Tracker.Start(p.UserID, body.Prompt, body.AspectRatio))
}

// VideoStatusHandler answers job polls.
type VideoStatusHandler struct {
	Tracker *VideoTracker
}

func (h VideoStatusHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeAPIError(w, r, http.StatusMethodNotAllowed, apierror.ErrInvalidRequest, "method not allowed")
		return
	}
	p, ok := auth.PrincipalFrom(r.Context())
	if !ok {
		writeAPIError(w, r, http.StatusUnauthorized, apierror.ErrAuthentication, "no principal")
		return
	}
	job, ok := h.Tracker.Get(p.UserID, r.PathValue("id"))
	if !ok {
		writeAPIError(w, r, http.StatusNotFound, apierror.ErrNotFound, "video job not found")
		return
	}
	writeJSON(w, http.StatusOK, job)
}
