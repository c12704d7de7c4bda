package handlers

import (
	"encoding/base64"
	"net/http"

	"github.com/alpha-ultimate/yusra/pkg/chat"
	"github.com/alpha-ultimate/yusra/pkg/gateway/apierror"
	"github.com/alpha-ultimate/yusra/pkg/gateway/auth"
	"github.com/alpha-ultimate/yusra/pkg/gateway/managers"
	"github.com/alpha-ultimate/yusra/pkg/gateway/mw"
	"github.com/alpha-ultimate/yusra/pkg/gateway/sse"
)

type submitFile struct {
	Name     string `json:"name"`
	MIMEType string `json:"mimeType"`
	Data     string `json:"data"` // base64
	URL      string `json:"url,omitempty"`
}

type submitBody struct {
	SessionID string       `json:"sessionId,omitempty"`
	Text      string       `json:"text"`
	Thinking  bool         `json:"thinking,omitempty"`
	Grounding string       `json:"grounding,omitempty"`
	Files     []submitFile `json:"files,omitempty"`
}

// SubmitHandler runs one chat turn and streams the assistant reply over SSE.
// Event order is: meta (ids), zero or more chunk events with cumulative text,
// then done carrying the final messages. Transport failures still end in
// done; the assistant message carries the fixed error reply.
type SubmitHandler struct {
	Managers *managers.Registry
}

func (h SubmitHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeAPIError(w, r, http.StatusMethodNotAllowed, apierror.ErrInvalidRequest, "method not allowed")
		return
	}
	p, ok := auth.PrincipalFrom(r.Context())
	if !ok {
		writeAPIError(w, r, http.StatusUnauthorized, apierror.ErrAuthentication, "no principal")
		return
	}

	var body submitBody
	if !decodeJSON(w, r, &body) {
		return
	}
	if id := r.PathValue("id"); id != "" {
		body.SessionID = id
	}

	files := make([]chat.File, 0, len(body.Files))
	for _, f := range body.Files {
		data, err := base64.StdEncoding.DecodeString(f.Data)
		if err != nil {
			writeAPIError(w, r, http.StatusBadRequest, apierror.ErrInvalidRequest, "file data is not valid base64")
			return
		}
		files = append(files, chat.File{
			Name:     f.Name,
			MIMEType: f.MIMEType,
			Data:     data,
			URL:      f.URL,
		})
	}

	m := h.Managers.For(r.Context(), p)

	stream, err := sse.New(w)
	if err != nil {
		writeAPIError(w, r, http.StatusInternalServerError, apierror.ErrAPI, "streaming unsupported")
		return
	}

	streamed := false
	result, err := m.Submit(r.Context(), chat.SubmitRequest{
		SessionID: body.SessionID,
		Text:      body.Text,
		Files:     files,
		Thinking:  body.Thinking,
		Grounding: chat.GroundingTool(body.Grounding),
		OnChunk: func(sessionID, messageID, cumulative string) {
			if !streamed {
				streamed = true
				_ = stream.Send("meta", map[string]string{
					"sessionId": sessionID,
					"messageId": messageID,
				})
			}
			_ = stream.Send("chunk", map[string]string{
				"sessionId": sessionID,
				"messageId": messageID,
				"text":      cumulative,
			})
		},
	})
	if err != nil {
		// Validation and busy failures happen before any chunk is emitted, so
		// the plain JSON error path is still available.
		if !streamed {
			writeError(w, r, err)
			return
		}
		reqID, _ := mw.RequestIDFrom(r.Context())
		apiErr, _ := apierror.FromError(err, reqID)
		_ = stream.Send("error", apierror.Envelope{Error: apiErr})
		return
	}

	_ = stream.Send("done", result)
}
