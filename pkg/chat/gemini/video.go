package gemini

import (
	"context"
	"fmt"
	"time"

	"google.golang.org/genai"
)

// GenerateVideo submits a Veo job and polls until it completes, returning
// the downloadable media URI. The call blocks for the job's lifetime;
// callers that need fire-and-poll semantics wrap it in their own job
// tracking.
func (c *Client) GenerateVideo(ctx context.Context, prompt, aspectRatio string) (string, error) {
	if aspectRatio == "" {
		aspectRatio = "16:9"
	}
	cfg := &genai.GenerateVideosConfig{
		NumberOfVideos: 1,
		Resolution:     "720p",
		AspectRatio:    aspectRatio,
	}
	op, err := c.ai.Models.GenerateVideos(ctx, ModelVideo, prompt, nil, cfg)
	if err != nil {
		return "", fmt.Errorf("gemini: generate video: %w", err)
	}

	ticker := time.NewTicker(c.poll)
	defer ticker.Stop()
	for !op.Done {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-ticker.C:
		}
		op, err = c.ai.Operations.GetVideosOperation(ctx, op, nil)
		if err != nil {
			return "", fmt.Errorf("gemini: poll video operation: %w", err)
		}
	}

	if op.Response == nil || len(op.Response.GeneratedVideos) == 0 ||
		op.Response.GeneratedVideos[0].Video == nil || op.Response.GeneratedVideos[0].Video.URI == "" {
		return "", fmt.Errorf("gemini: no video generated")
	}
	return op.Response.GeneratedVideos[0].Video.URI, nil
}
