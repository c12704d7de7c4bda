package gemini

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

const titlePromptFmt = `Summarize this message into a short, concise chat title (max 5 words): %q`

// Title summarizes a message into a short chat title.
func (c *Client) Title(ctx context.Context, text string) (string, error) {
	resp, err := c.ai.Models.GenerateContent(ctx, ModelTitle, genai.Text(fmt.Sprintf(titlePromptFmt, text)), nil)
	if err != nil {
		return "", fmt.Errorf("gemini: title: %w", err)
	}
	return strings.TrimSpace(resp.Text()), nil
}

// Speech synthesizes text into WAV audio. The model returns raw 16-bit PCM
// at 24 kHz without a container; the samples are wrapped in a WAV header
// here so the client can hand them straight to an audio element.
func (c *Client) Speech(ctx context.Context, text, voice string) ([]byte, error) {
	if voice == "" {
		voice = DefaultVoice
	}
	cfg := &genai.GenerateContentConfig{
		ResponseModalities: []string{"AUDIO"},
		SpeechConfig: &genai.SpeechConfig{
			VoiceConfig: &genai.VoiceConfig{
				PrebuiltVoiceConfig: &genai.PrebuiltVoiceConfig{VoiceName: voice},
			},
		},
	}
	resp, err := c.ai.Models.GenerateContent(ctx, ModelTTS, genai.Text(text), cfg)
	if err != nil {
		return nil, fmt.Errorf("gemini: speech: %w", err)
	}
	pcm := firstInlineData(resp)
	if len(pcm) == 0 {
		return nil, fmt.Errorf("gemini: speech: no audio data in response")
	}
	return pcmToWAV(pcm, ttsSampleRate, 1), nil
}

// Transcribe converts recorded audio into plain text.
func (c *Client) Transcribe(ctx context.Context, mimeType, dataB64 string) (string, error) {
	data, err := base64.StdEncoding.DecodeString(dataB64)
	if err != nil {
		return "", fmt.Errorf("gemini: decode audio payload: %w", err)
	}
	contents := []*genai.Content{{Role: genai.RoleUser, Parts: []*genai.Part{
		{InlineData: &genai.Blob{MIMEType: mimeType, Data: data}},
		genai.NewPartFromText("Transcribe this audio exactly as spoken."),
	}}}
	resp, err := c.ai.Models.GenerateContent(ctx, ModelDefault, contents, nil)
	if err != nil {
		return "", fmt.Errorf("gemini: transcribe: %w", err)
	}
	return resp.Text(), nil
}

// Analyze runs free-text analysis over an image/audio/video payload.
func (c *Client) Analyze(ctx context.Context, prompt, mimeType, dataB64 string) (string, error) {
	data, err := base64.StdEncoding.DecodeString(dataB64)
	if err != nil {
		return "", fmt.Errorf("gemini: decode media payload: %w", err)
	}
	contents := []*genai.Content{{Role: genai.RoleUser, Parts: []*genai.Part{
		{InlineData: &genai.Blob{MIMEType: mimeType, Data: data}},
		genai.NewPartFromText(prompt),
	}}}
	resp, err := c.ai.Models.GenerateContent(ctx, ModelPro, contents, nil)
	if err != nil {
		return "", fmt.Errorf("gemini: analyze: %w", err)
	}
	return resp.Text(), nil
}

func firstInlineData(resp *genai.GenerateContentResponse) []byte {
	if resp == nil {
		return nil
	}
	for _, cand := range resp.Candidates {
		if cand == nil || cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if part != nil && part.InlineData != nil && len(part.InlineData.Data) > 0 {
				return part.InlineData.Data
			}
		}
	}
	return nil
}
