package gemini

import (
	"testing"

	"github.com/alpha-ultimate/yusra/pkg/chat"
)

func TestChooseModel(t *testing.T) {
	tests := []struct {
		name      string
		req       chat.StreamRequest
		wantModel string
		wantTools int
		thinking  bool
	}{
		{
			name:      "default",
			req:       chat.StreamRequest{Prompt: "hi"},
			wantModel: ModelDefault,
		},
		{
			name:      "thinking routes to pro",
			req:       chat.StreamRequest{Prompt: "hi", Thinking: true},
			wantModel: ModelPro,
			thinking:  true,
		},
		{
			name:      "thinking wins over grounding",
			req:       chat.StreamRequest{Prompt: "hi", Thinking: true, Grounding: chat.GroundingSearch},
			wantModel: ModelPro,
			thinking:  true,
		},
		{
			name:      "maps grounding pins its model",
			req:       chat.StreamRequest{Prompt: "coffee near me", Grounding: chat.GroundingMaps},
			wantModel: ModelMaps,
			wantTools: 1,
		},
		{
			name:      "search grounding on default model",
			req:       chat.StreamRequest{Prompt: "news", Grounding: chat.GroundingSearch},
			wantModel: ModelDefault,
			wantTools: 1,
		},
		{
			name: "image attachment routes to pro",
			req: chat.StreamRequest{
				Prompt:      "what is this",
				Attachments: []chat.EncodedAttachment{{MIMEType: "image/png", Data: "aGk="}},
			},
			wantModel: ModelPro,
		},
		{
			name: "audio attachment stays on default",
			req: chat.StreamRequest{
				Prompt:      "transcribe",
				Attachments: []chat.EncodedAttachment{{MIMEType: "audio/webm", Data: "aGk="}},
			},
			wantModel: ModelDefault,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			model, cfg := chooseModel(tt.req)
			if model != tt.wantModel {
				t.Fatalf("model = %s, want %s", model, tt.wantModel)
			}
			if len(cfg.Tools) != tt.wantTools {
				t.Fatalf("tools = %d, want %d", len(cfg.Tools), tt.wantTools)
			}
			if tt.thinking && cfg.ThinkingConfig == nil {
				t.Fatal("thinking config missing")
			}
			if !tt.thinking && cfg.ThinkingConfig != nil {
				t.Fatal("unexpected thinking config")
			}
		})
	}
}

func TestBuildPartsRejectsBadBase64(t *testing.T) {
	_, err := buildParts("hi", []chat.EncodedAttachment{{MIMEType: "image/png", Data: "%%%"}})
	if err == nil {
		t.Fatal("expected decode error")
	}
}

func TestBuildPartsOrdersAttachmentsBeforePrompt(t *testing.T) {
	parts, err := buildParts("describe", []chat.EncodedAttachment{{MIMEType: "image/png", Data: "aGk="}})
	if err != nil {
		t.Fatalf("buildParts: %v", err)
	}
	if len(parts) != 2 {
		t.Fatalf("parts = %d, want 2", len(parts))
	}
	if parts[0].InlineData == nil || parts[0].InlineData.MIMEType != "image/png" {
		t.Fatal("first part must be the attachment blob")
	}
	if parts[1].Text != "describe" {
		t.Fatalf("last part text = %q", parts[1].Text)
	}
}
