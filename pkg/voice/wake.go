// Package voice layers a wake-word and continuous-conversation protocol
// over injected speech recognition and synthesis resources, dispatching
// recognized commands into the conversation session manager.
package voice

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"
)

// DefaultWakeWord is used when no custom wake word is configured.
const DefaultWakeWord = "Yusra"

// stopWords end an active conversation and drop the controller back to
// standby. Matched against the normalized transcript.
var stopWords = map[string]struct{}{
	"stop":    {},
	"cancel":  {},
	"bye":     {},
	"goodbye": {},
	"sleep":   {},
	"off":     {},
}

// WakeMatcher matches utterances against a configurable wake word with an
// optional greeting prefix ("hi Yusra", "hey yusra", bare "Yusra").
type WakeMatcher struct {
	re *regexp.Regexp
}

// NewWakeMatcher compiles a matcher for the given wake word. An empty word
// falls back to the default.
func NewWakeMatcher(word string) *WakeMatcher {
	word = strings.TrimSpace(word)
	if word == "" {
		word = DefaultWakeWord
	}
	pattern := fmt.Sprintf(`(?i)^\s*(?:(?:hi|hey|hello|ok|okay)[\s,.!]+)?%s\b[\s,.!]*`, regexp.QuoteMeta(word))
	return &WakeMatcher{re: regexp.MustCompile(pattern)}
}

// Match reports whether the transcript opens with the wake pattern and
// returns the remaining command text with the matched prefix stripped.
func (m *WakeMatcher) Match(transcript string) (command string, ok bool) {
	loc := m.re.FindStringIndex(transcript)
	if loc == nil {
		return "", false
	}
	return strings.TrimSpace(transcript[loc[1]:]), true
}

// NormalizeCommand lowercases a transcript and strips punctuation, leaving
// only letters, digits, and single spaces. Used for stop-word comparison so
// "Stop." still matches.
func NormalizeCommand(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
		case unicode.IsSpace(r):
			b.WriteRune(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// IsStopWord reports whether a transcript is one of the fixed conversation
// stop words.
func IsStopWord(transcript string) bool {
	_, ok := stopWords[NormalizeCommand(transcript)]
	return ok
}

// meaningfulCommand reports whether a stripped wake-word remainder is long
// enough to dispatch directly. Short remainders ("", "ok") are treated as a
// bare summons and answered with an acknowledgment instead.
func meaningfulCommand(command string) bool {
	return len([]rune(strings.TrimSpace(command))) > 2
}
