// Package chat owns the conversation data model and the session manager
// that drives a streamed exchange with the generative backend.
package chat

import (
	"strings"
	"time"
)

// Role identifies the author of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// AttachmentType classifies an attachment by its media kind.
type AttachmentType string

const (
	AttachmentImage AttachmentType = "image"
	AttachmentFile  AttachmentType = "file"
	AttachmentAudio AttachmentType = "audio"
	AttachmentVideo AttachmentType = "video"
)

// Attachment is a user-supplied file carried by a message. URL is the
// client's transient object reference for rendering; it must be revoked
// client-side when the owning message is discarded, so DeleteSession
// reports the URLs of every removed attachment.
type Attachment struct {
	ID       string         `json:"id"`
	Type     AttachmentType `json:"type"`
	URL      string         `json:"url"`
	Base64   string         `json:"base64,omitempty"`
	MIMEType string         `json:"mimeType,omitempty"`
}

// Citation is a single grounding source supplied by the backend.
type Citation struct {
	Title string `json:"title"`
	URI   string `json:"uri"`
}

// GroundingMetadata carries backend citations attached to a response.
type GroundingMetadata struct {
	Search []Citation `json:"search,omitempty"`
	Maps   []Citation `json:"maps,omitempty"`
}

// Message is a single conversation turn. Assistant content is mutated in
// place while the response streams and is immutable once finalized.
type Message struct {
	ID          string             `json:"id"`
	Role        Role               `json:"role"`
	Content     string             `json:"content"`
	Timestamp   time.Time          `json:"timestamp"`
	Attachments []Attachment       `json:"attachments,omitempty"`
	Grounding   *GroundingMetadata `json:"groundingMetadata,omitempty"`
	IsThinking  bool               `json:"isThinking,omitempty"`
}

// ChatSession is a titled, ordered conversation. Messages grow append-only
// while the session is active and are replaced wholesale when loaded from
// the store.
type ChatSession struct {
	ID        string     `json:"id"`
	Title     string     `json:"title"`
	Messages  []*Message `json:"messages"`
	CreatedAt time.Time  `json:"createdAt"`
}

// PlaceholderTitle is the title a session carries until the backend's
// summary rewrite resolves.
const PlaceholderTitle = "New Chat"

// Plan is the user's subscription tier. It gates the per-file attachment
// size ceiling.
type Plan string

const (
	PlanFree    Plan = "free"
	PlanPro     Plan = "pro"
	PlanQuantum Plan = "quantum"
)

// MaxAttachmentBytes returns the per-file size ceiling for a plan:
// 3 MB on the free tier, 20 MB on paid tiers.
func MaxAttachmentBytes(p Plan) int64 {
	if p == PlanFree || p == "" {
		return 3 << 20
	}
	return 20 << 20
}

// AttachmentTypeForMIME maps a MIME type to the attachment classification
// used by the UI.
func AttachmentTypeForMIME(mimeType string) AttachmentType {
	switch {
	case strings.HasPrefix(mimeType, "image/"):
		return AttachmentImage
	case strings.HasPrefix(mimeType, "audio/"):
		return AttachmentAudio
	case strings.HasPrefix(mimeType, "video/"):
		return AttachmentVideo
	default:
		return AttachmentFile
	}
}
