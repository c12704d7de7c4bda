package gemini

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"github.com/alpha-ultimate/yusra/pkg/chat"
)

// chooseModel picks the model and tool set for a request. Deep reasoning
// wins over grounding; maps grounding pins its dedicated model; visual
// attachments route to the pro model.
func chooseModel(req chat.StreamRequest) (model string, cfg *genai.GenerateContentConfig) {
	cfg = &genai.GenerateContentConfig{}
	switch {
	case req.Thinking:
		model = ModelPro
		cfg.ThinkingConfig = &genai.ThinkingConfig{ThinkingBudget: genai.Ptr[int32](thinkingBudget)}
	case req.Grounding == chat.GroundingMaps:
		model = ModelMaps
		cfg.Tools = []*genai.Tool{{GoogleMaps: &genai.GoogleMaps{}}}
	case req.Grounding == chat.GroundingSearch:
		model = ModelDefault
		cfg.Tools = []*genai.Tool{{GoogleSearch: &genai.GoogleSearch{}}}
	case hasVisualAttachment(req.Attachments):
		model = ModelPro
	default:
		model = ModelDefault
	}
	return model, cfg
}

func hasVisualAttachment(atts []chat.EncodedAttachment) bool {
	for _, a := range atts {
		if strings.HasPrefix(a.MIMEType, "image/") || strings.HasPrefix(a.MIMEType, "video/") {
			return true
		}
	}
	return false
}

// Stream runs one streamed generation. Chunk callbacks receive cumulative
// text; the returned result carries the accumulated full text, which is
// authoritative regardless of what any individual chunk held.
func (c *Client) Stream(ctx context.Context, req chat.StreamRequest, onChunk func(string)) (*chat.StreamResult, error) {
	parts, err := buildParts(req.Prompt, req.Attachments)
	if err != nil {
		return nil, err
	}
	model, cfg := chooseModel(req)
	if c.system != "" {
		cfg.SystemInstruction = genai.NewContentFromText(c.system, genai.RoleUser)
	}
	contents := []*genai.Content{{Role: genai.RoleUser, Parts: parts}}

	var full strings.Builder
	var grounding *genai.GroundingMetadata
	for resp, err := range c.ai.Models.GenerateContentStream(ctx, model, contents, cfg) {
		if err != nil {
			return nil, fmt.Errorf("gemini: stream: %w", err)
		}
		if text := resp.Text(); text != "" {
			full.WriteString(text)
			if onChunk != nil {
				onChunk(full.String())
			}
		}
		if len(resp.Candidates) > 0 && resp.Candidates[0].GroundingMetadata != nil {
			grounding = resp.Candidates[0].GroundingMetadata
		}
	}

	result := &chat.StreamResult{FullText: full.String()}
	result.Search, result.Maps = splitCitations(grounding)
	return result, nil
}

func buildParts(prompt string, atts []chat.EncodedAttachment) ([]*genai.Part, error) {
	parts := make([]*genai.Part, 0, len(atts)+1)
	for _, a := range atts {
		data, err := base64.StdEncoding.DecodeString(a.Data)
		if err != nil {
			return nil, fmt.Errorf("gemini: decode attachment payload: %w", err)
		}
		parts = append(parts, &genai.Part{InlineData: &genai.Blob{MIMEType: a.MIMEType, Data: data}})
	}
	parts = append(parts, genai.NewPartFromText(prompt))
	return parts, nil
}

func splitCitations(gm *genai.GroundingMetadata) (search, maps []chat.Citation) {
	if gm == nil {
		return nil, nil
	}
	for _, chunk := range gm.GroundingChunks {
		if chunk == nil {
			continue
		}
		if chunk.Web != nil && chunk.Web.URI != "" {
			search = append(search, chat.Citation{Title: chunk.Web.Title, URI: chunk.Web.URI})
		}
		if chunk.Maps != nil && chunk.Maps.URI != "" {
			maps = append(maps, chat.Citation{Title: chunk.Maps.Title, URI: chunk.Maps.URI})
		}
	}
	return search, maps
}
