// Package settings holds the per-user application settings shared by the
// gateway and the voice controller.
package settings

import "context"

// Theme names the UI color theme. Styling itself is a client concern; the
// server only round-trips the value.
type Theme string

const (
	ThemeAlpha  Theme = "alpha"
	ThemeViolet Theme = "violet"
	ThemeGold   Theme = "gold"
	ThemeMatrix Theme = "matrix"
	ThemeDanger Theme = "danger"
)

// Settings mirrors the client's persisted preferences.
type Settings struct {
	Theme             Theme   `json:"theme"`
	AutoSpeak         bool    `json:"autoSpeak"`
	VoiceRate         float64 `json:"voiceRate"`
	VoicePitch        float64 `json:"voicePitch"`
	PreferredVoiceURI string  `json:"preferredVoiceURI,omitempty"`
	SoundEffects      bool    `json:"soundEffects"`
	MemoryEnabled     bool    `json:"memoryEnabled"`
	ShowTimestamps    bool    `json:"showTimestamps"`
	GroundingTool     string  `json:"groundingTool"` // none | search | maps
	ThinkingMode      bool    `json:"thinkingMode"`
	WakeWord          string  `json:"wakeWord"`
}

// Defaults returns the settings a fresh user starts with.
func Defaults() Settings {
	return Settings{
		Theme:          ThemeAlpha,
		AutoSpeak:      true,
		VoiceRate:      1.0,
		VoicePitch:     1.0,
		SoundEffects:   true,
		MemoryEnabled:  true,
		ShowTimestamps: true,
		GroundingTool:  "none",
		ThinkingMode:   false,
		WakeWord:       "Yusra",
	}
}

// Store persists one settings document per user. A missing document is not
// an error; implementations return Defaults().
type Store interface {
	LoadSettings(ctx context.Context, userID string) (Settings, error)
	SaveSettings(ctx context.Context, userID string, s Settings) error
}
