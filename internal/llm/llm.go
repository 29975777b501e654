package llm

import (
	"context"
	"encoding/json"

	"cvscanner-backend/internal/shared/apperr"
	"cvscanner-backend/resume/model"
)

// Structurer converts free-form résumé text into the Formatted schema.
// Errors carry one of the structuring apperr kinds; nothing is retried internally.
type Structurer interface {
	Structure(ctx context.Context, text string) (Output, error)
}

// Output is a successful structuring result.
type Output struct {
	Formatted model.Formatted
	// Raw is the normalized JSON payload kept as an audit artifact.
	Raw   json.RawMessage
	Model string
	Usage *Usage
}

// Usage reports token accounting returned by the provider.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// PlaceholderClient stands in when no provider is configured.
type PlaceholderClient struct{}

// Structure always fails with StructuringFailed.
func (PlaceholderClient) Structure(ctx context.Context, text string) (Output, error) {
	_ = ctx
	_ = text
	return Output{}, apperr.New(apperr.KindStructuringFailed, "structuring provider is not configured")
}
