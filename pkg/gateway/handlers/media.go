package handlers

import (
	"net/http"

	"github.com/alpha-ultimate/yusra/pkg/chat"
	"github.com/alpha-ultimate/yusra/pkg/gateway/apierror"
)

// SpeechHandler synthesizes text to WAV audio.
type SpeechHandler struct {
	Transport chat.Transport
}

func (h SpeechHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeAPIError(w, r, http.StatusMethodNotAllowed, apierror.ErrInvalidRequest, "method not allowed")
		return
	}
	var body struct {
		Text  string `json:"text"`
		Voice string `json:"voice,omitempty"`
	}
	if !decodeJSON(w, r, &body) {
		return
	}
	if body.Text == "" {
		writeAPIError(w, r, http.StatusBadRequest, apierror.ErrInvalidRequest, "text must not be empty")
		return
	}
	wav, err := h.Transport.Speech(r.Context(), body.Text, body.Voice)
	if err != nil {
		writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "audio/wav")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(wav)
}

// TranscribeHandler converts recorded audio to text.
type TranscribeHandler struct {
	Transport chat.Transport
}

func (h TranscribeHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeAPIError(w, r, http.StatusMethodNotAllowed, apierror.ErrInvalidRequest, "method not allowed")
		return
	}
	var body struct {
		MIMEType string `json:"mimeType"`
		Data     string `json:"data"` // base64
	}
	if !decodeJSON(w, r, &body) {
		return
	}
	if body.Data == "" {
		writeAPIError(w, r, http.StatusBadRequest, apierror.ErrInvalidRequest, "audio data must not be empty")
		return
	}
	text, err := h.Transport.Transcribe(r.Context(), body.MIMEType, body.Data)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"text": text})
}

// VisionHandler runs free-text analysis over a media payload.
type VisionHandler struct {
	Transport chat.Transport
}

func (h VisionHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeAPIError(w, r, http.StatusMethodNotAllowed, apierror.ErrInvalidRequest, "method not allowed")
		return
	}
	var body struct {
		Prompt   string `json:"prompt"`
		MIMEType string `json:"mimeType"`
		Data     string `json:"data"` // base64
	}
	if !decodeJSON(w, r, &body) {
		return
	}
	if body.Data == "" {
		writeAPIError(w, r, http.StatusBadRequest, apierror.ErrInvalidRequest, "media data must not be empty")
		return
	}
	text, err := h.Transport.Analyze(r.Context(), body.Prompt, body.MIMEType, body.Data)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"text": text})
}
