package llm

import (
	"context"
	"encoding/json"
	"errors"
)

// Client abstracts LLM providers for contract analysis.
type Client interface {
	AnalyzeContract(ctx context.Context, input AnalyzeInput) (json.RawMessage, Usage, error)
}

// AnalyzeInput captures the inputs needed for one analysis call.
type AnalyzeInput struct {
	ContractText     string
	AnalysisType     string
	CustomParameters map[string]any
}

// Usage reports token consumption for a single call.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// ErrNotImplemented is returned by the placeholder client.
var ErrNotImplemented = errors.New("LLM not implemented")

// PlaceholderClient is a stub implementation until provider wiring is added.
type PlaceholderClient struct{}

// AnalyzeContract returns ErrNotImplemented.
func (PlaceholderClient) AnalyzeContract(ctx context.Context, input AnalyzeInput) (json.RawMessage, Usage, error) {
	_ = ctx
	_ = input
	return nil, Usage{}, ErrNotImplemented
}
