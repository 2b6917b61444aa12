package analyzer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/sethvargo/go-retry"

	"contracts-backend/internal/analysis"
	"contracts-backend/internal/contracts"
	"contracts-backend/internal/llm"
	"contracts-backend/internal/shared/storage/object"
	"contracts-backend/internal/worker"
)

// Cost accounting: flat cent rate per 1K tokens, rounded up.
const costCentsPer1KTokens = 1

// maxLLMAttempts bounds the fibonacci-backoff retry around one LLM call.
// The queue-level retry budget is separate.
const maxLLMAttempts = 3

// TextExtractor resolves contract text from the stored document.
type TextExtractor interface {
	ExtractText(ctx context.Context, store object.ObjectStore, fileKey, mimeType string) (text, extractedKey string, err error)
}

// Engine runs contract analyses for the worker. One Engine backs all
// per-type handlers.
type Engine struct {
	LLM       llm.Client
	Contracts contracts.Repo
	Store     object.ObjectStore
	Extractor TextExtractor
	Jobs      analysis.Repo

	// RetryBase overrides the backoff base for LLM retries. Zero means 1s.
	RetryBase time.Duration
}

// Handlers returns one worker handler per supported analysis type.
func (e *Engine) Handlers() []worker.Handler {
	types := []string{
		analysis.TypeBasic,
		analysis.TypeComprehensive,
		analysis.TypeRiskAssessment,
		analysis.TypeClauseExtraction,
	}
	handlers := make([]worker.Handler, 0, len(types))
	for _, analysisType := range types {
		handlers = append(handlers, typedHandler{analysisType: analysisType, engine: e})
	}
	return handlers
}

type typedHandler struct {
	analysisType string
	engine       *Engine
}

func (h typedHandler) Type() string { return h.analysisType }

func (h typedHandler) Handle(ctx context.Context, job analysis.Job) (analysis.Completion, error) {
	return h.engine.run(ctx, job)
}

func (e *Engine) run(ctx context.Context, job analysis.Job) (analysis.Completion, error) {
	e.progress(ctx, job.ID, 10)

	text, err := e.contractText(ctx, job.ContractID)
	if err != nil {
		return analysis.Completion{}, err
	}
	e.progress(ctx, job.ID, 30)

	raw, usage, err := e.callLLM(ctx, llm.AnalyzeInput{
		ContractText:     text,
		AnalysisType:     job.AnalysisType,
		CustomParameters: job.CustomParameters,
	})
	if err != nil {
		return analysis.Completion{}, err
	}
	e.progress(ctx, job.ID, 80)

	results, err := validateResults(job.AnalysisType, raw)
	if err != nil {
		return analysis.Completion{}, worker.NewPermanentError(err)
	}

	summary, _ := results["summary"].(string)
	confidence, _ := results["confidenceScore"].(float64)
	return analysis.Completion{
		Results:         results,
		Summary:         summary,
		ConfidenceScore: confidence,
		TokensUsed:      usage.TotalTokens,
		CostCents:       costCents(usage.TotalTokens),
	}, nil
}

// contractText loads the extracted text, extracting it first if this is
// the contract's first analysis.
func (e *Engine) contractText(ctx context.Context, contractID string) (string, error) {
	contract, err := e.Contracts.GetByID(ctx, contractID)
	if err != nil {
		if errors.Is(err, contracts.ErrNotFound) {
			return "", worker.NewPermanentError(fmt.Errorf("contract %s not found", contractID))
		}
		return "", err
	}

	if contract.ExtractedTextKey != "" {
		body, err := e.Store.Open(ctx, contract.ExtractedTextKey)
		if err != nil {
			return "", fmt.Errorf("open extracted text %s: %w", contract.ExtractedTextKey, err)
		}
		defer body.Close()
		raw, err := io.ReadAll(body)
		if err != nil {
			return "", err
		}
		return requireText(string(raw))
	}

	text, extractedKey, err := e.Extractor.ExtractText(ctx, e.Store, contract.StorageKey, contract.MimeType)
	if err != nil {
		return "", fmt.Errorf("extract contract %s: %w", contractID, err)
	}
	if err := e.Contracts.UpdateExtraction(ctx, contractID, extractedKey); err != nil {
		return "", err
	}
	return requireText(text)
}

func requireText(text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", worker.NewPermanentError(errors.New("contract document has no extractable text"))
	}
	return text, nil
}

// callLLM retries transient provider failures with fibonacci backoff.
func (e *Engine) callLLM(ctx context.Context, input llm.AnalyzeInput) (json.RawMessage, llm.Usage, error) {
	var raw json.RawMessage
	var usage llm.Usage

	base := e.RetryBase
	if base <= 0 {
		base = time.Second
	}
	backoff := retry.WithMaxRetries(maxLLMAttempts, retry.NewFibonacci(base))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		var callErr error
		raw, usage, callErr = e.LLM.AnalyzeContract(ctx, input)
		if callErr == nil {
			return nil
		}
		if errors.Is(callErr, llm.ErrNotImplemented) {
			return callErr
		}
		return retry.RetryableError(callErr)
	})
	if err != nil {
		return nil, llm.Usage{}, fmt.Errorf("llm call: %w", err)
	}
	return raw, usage, nil
}

func validateResults(analysisType string, raw json.RawMessage) (map[string]any, error) {
	var decoded any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, fmt.Errorf("results are not valid JSON: %w", err)
	}

	schema, ok := resultSchemas[analysisType]
	if !ok {
		return nil, fmt.Errorf("no result schema for analysis type %s", analysisType)
	}
	if err := schema.Validate(decoded); err != nil {
		return nil, fmt.Errorf("results failed schema validation: %w", err)
	}

	results, ok := decoded.(map[string]any)
	if !ok {
		return nil, errors.New("results are not a JSON object")
	}
	return results, nil
}

func costCents(tokens int) int {
	if tokens <= 0 {
		return 0
	}
	return (tokens*costCentsPer1KTokens + 999) / 1000
}

func (e *Engine) progress(ctx context.Context, jobID string, progress int) {
	if e.Jobs == nil {
		return
	}
	_ = e.Jobs.UpdateProgress(ctx, jobID, progress)
}
