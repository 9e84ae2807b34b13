package port

import "context"

// VisionModel is a hosted multimodal model that can read an image and
// answer with text.
type VisionModel interface {
	// Generate sends the prompt and optional image and returns the model's
	// text output.
	Generate(ctx context.Context, req GenerateRequest) (string, error)

	// ModelName returns the name of the model.
	ModelName() string
}

// GenerateRequest describes a single model call.
type GenerateRequest struct {
	Purpose         string // Label for logs and fakes, e.g. "extract"
	Prompt          string
	Image           []byte // Optional
	MIMEType        string // MIME type of Image, e.g. "image/jpeg"
	Temperature     float64
	MaxOutputTokens int
	JSON            bool // Ask the model for a JSON response body
}
