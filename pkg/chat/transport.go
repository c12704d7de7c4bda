package chat

import "context"

// GroundingTool selects which grounding backend, if any, a request uses.
type GroundingTool string

const (
	GroundingNone   GroundingTool = "none"
	GroundingSearch GroundingTool = "search"
	GroundingMaps   GroundingTool = "maps"
)

// EncodedAttachment is an attachment in transport-ready form. Base64 is the
// transport's documented contract for binary payloads, not a choice of the
// session manager.
type EncodedAttachment struct {
	MIMEType string
	Data     string // base64-encoded bytes
}

// StreamRequest describes one generative exchange.
type StreamRequest struct {
	Prompt      string
	Attachments []EncodedAttachment
	Thinking    bool
	Grounding   GroundingTool
}

// StreamResult is the terminal value of a streaming exchange. FullText is
// authoritative: intermediate chunk callbacks may deliver partial or
// duplicated cumulative text, but FullText is what the message is finalized
// with.
type StreamResult struct {
	FullText string
	Search   []Citation
	Maps     []Citation
}

// VideoJob reports the state of a long-running video generation job.
type VideoJob struct {
	ID     string `json:"id"`
	Done   bool   `json:"done"`
	URI    string `json:"uri,omitempty"`
	Errmsg string `json:"error,omitempty"`
}

// Transport is the opaque generative backend. Chunk callbacks receive
// cumulative text in emission order; the returned StreamResult carries the
// authoritative full text plus any grounding citations.
type Transport interface {
	Stream(ctx context.Context, req StreamRequest, onChunk func(cumulative string)) (*StreamResult, error)

	// Title summarizes a short text into a chat title.
	Title(ctx context.Context, text string) (string, error)

	// Speech synthesizes text into playable audio (WAV bytes).
	Speech(ctx context.Context, text, voice string) ([]byte, error)

	// Transcribe converts recorded audio into text.
	Transcribe(ctx context.Context, mimeType, dataB64 string) (string, error)

	// Analyze runs free-text analysis over an image/audio/video payload.
	Analyze(ctx context.Context, prompt, mimeType, dataB64 string) (string, error)

	// GenerateVideo submits a video job and blocks until it completes or the
	// context is done, returning the downloadable media URI.
	GenerateVideo(ctx context.Context, prompt, aspectRatio string) (string, error)
}

// Store persists the full session list for a user. The manager writes
// through on every mutation; persistence is skipped entirely for
// unauthenticated users.
type Store interface {
	LoadSessions(ctx context.Context, userID string) ([]*ChatSession, error)
	SaveSessions(ctx context.Context, userID string, sessions []*ChatSession) error
}
