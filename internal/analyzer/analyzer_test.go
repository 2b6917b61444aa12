package analyzer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"contracts-backend/internal/analysis"
	"contracts-backend/internal/contracts"
	"contracts-backend/internal/llm"
	"contracts-backend/internal/shared/storage/object"
	"contracts-backend/internal/worker"
)

type fakeStore struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func newFakeStore() *fakeStore {
	return &fakeStore{objects: make(map[string][]byte)}
}

func (s *fakeStore) Save(_ context.Context, userID, fileName string, r io.Reader) (string, int64, string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return "", 0, "", err
	}
	key := userID + "/" + fileName
	s.mu.Lock()
	s.objects[key] = data
	s.mu.Unlock()
	return key, int64(len(data)), "application/octet-stream", nil
}

func (s *fakeStore) Open(_ context.Context, storageKey string) (io.ReadCloser, error) {
	s.mu.Lock()
	data, ok := s.objects[storageKey]
	s.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("object %s not found", storageKey)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (s *fakeStore) SaveWithKey(_ context.Context, storageKey, _ string, r io.Reader) (int64, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return 0, err
	}
	s.mu.Lock()
	s.objects[storageKey] = data
	s.mu.Unlock()
	return int64(len(data)), nil
}

type stubLLM struct {
	mu       sync.Mutex
	attempts int
	fail     int
	raw      string
	usage    llm.Usage
}

func (c *stubLLM) AnalyzeContract(_ context.Context, _ llm.AnalyzeInput) (json.RawMessage, llm.Usage, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.attempts++
	if c.attempts <= c.fail {
		return nil, llm.Usage{}, errors.New("rate limited")
	}
	return json.RawMessage(c.raw), c.usage, nil
}

type stubExtractor struct {
	text string
	err  error
}

func (e stubExtractor) ExtractText(ctx context.Context, store object.ObjectStore, fileKey, _ string) (string, string, error) {
	if e.err != nil {
		return "", "", e.err
	}
	key := fileKey + ".extracted.txt"
	if saver, ok := store.(interface {
		SaveWithKey(ctx context.Context, storageKey, contentType string, r io.Reader) (int64, error)
	}); ok {
		_, _ = saver.SaveWithKey(ctx, key, "text/plain", strings.NewReader(e.text))
	}
	return e.text, key, nil
}

const validBasicResult = `{
  "summary": "A services agreement between two parties.",
  "confidenceScore": 0.85,
  "parties": ["Acme Corp", "Globex LLC"],
  "effectiveDate": "2025-01-01",
  "termMonths": 12
}`

func basicJob(contractID string) analysis.Job {
	return analysis.Job{
		ID:           "job-1",
		ContractID:   contractID,
		OwnerUserID:  "user-1",
		AnalysisType: analysis.TypeBasic,
		Status:       analysis.StatusProcessing,
		MaxRetries:   analysis.DefaultMaxRetries,
		CreatedAt:    time.Now().UTC(),
	}
}

func newEngine(t *testing.T, client llm.Client, ext TextExtractor) (*Engine, *contracts.MemoryRepo, *fakeStore) {
	t.Helper()
	repo := contracts.NewMemoryRepo()
	store := newFakeStore()
	return &Engine{
		LLM:       client,
		Contracts: repo,
		Store:     store,
		Extractor: ext,
		Jobs:      analysis.NewMemoryRepo(),
		RetryBase: time.Millisecond,
	}, repo, store
}

func seed(t *testing.T, repo *contracts.MemoryRepo, store *fakeStore, extracted string) string {
	t.Helper()
	contract := contracts.Contract{
		ID:          "c-1",
		OwnerUserID: "user-1",
		Title:       "MSA",
		FileName:    "msa.pdf",
		MimeType:    "application/pdf",
		StorageKey:  "user-1/msa.pdf",
		Status:      contracts.StatusUploaded,
		CreatedAt:   time.Now().UTC(),
	}
	store.objects[contract.StorageKey] = []byte("%PDF-1.4 raw bytes")
	if extracted != "" {
		contract.ExtractedTextKey = contract.StorageKey + ".extracted.txt"
		contract.Status = contracts.StatusReady
		store.objects[contract.ExtractedTextKey] = []byte(extracted)
	}
	if err := repo.Create(context.Background(), contract); err != nil {
		t.Fatalf("Create: %v", err)
	}
	return contract.ID
}

func TestRunProducesValidatedCompletion(t *testing.T) {
	client := &stubLLM{raw: validBasicResult, usage: llm.Usage{TotalTokens: 2500}}
	engine, repo, store := newEngine(t, client, stubExtractor{})
	contractID := seed(t, repo, store, "This agreement is made between Acme Corp and Globex LLC.")

	done, err := engine.run(context.Background(), basicJob(contractID))
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if done.Summary != "A services agreement between two parties." {
		t.Fatalf("unexpected summary: %q", done.Summary)
	}
	if done.ConfidenceScore != 0.85 {
		t.Fatalf("unexpected confidence: %v", done.ConfidenceScore)
	}
	if done.TokensUsed != 2500 || done.CostCents != 3 {
		t.Fatalf("unexpected accounting: tokens=%d cost=%d", done.TokensUsed, done.CostCents)
	}
	if parties, ok := done.Results["parties"].([]any); !ok || len(parties) != 2 {
		t.Fatalf("results not decoded: %+v", done.Results)
	}
}

func TestRunExtractsTextOnFirstAnalysis(t *testing.T) {
	client := &stubLLM{raw: validBasicResult}
	engine, repo, store := newEngine(t, client, stubExtractor{text: "extracted contract body"})
	contractID := seed(t, repo, store, "")

	if _, err := engine.run(context.Background(), basicJob(contractID)); err != nil {
		t.Fatalf("run: %v", err)
	}

	contract, err := repo.GetByID(context.Background(), contractID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if contract.ExtractedTextKey == "" {
		t.Fatal("expected extraction key recorded on contract")
	}
	if contract.Status != contracts.StatusReady {
		t.Fatalf("expected ready status after extraction, got %s", contract.Status)
	}
}

func TestRunEmptyDocumentIsPermanent(t *testing.T) {
	client := &stubLLM{raw: validBasicResult}
	engine, repo, store := newEngine(t, client, stubExtractor{})
	contractID := seed(t, repo, store, "   \n ")

	_, err := engine.run(context.Background(), basicJob(contractID))
	if err == nil || !worker.IsPermanent(err) {
		t.Fatalf("expected permanent error for empty document, got %v", err)
	}
}

func TestRunMissingContractIsPermanent(t *testing.T) {
	engine, _, _ := newEngine(t, &stubLLM{raw: validBasicResult}, stubExtractor{})

	_, err := engine.run(context.Background(), basicJob("nope"))
	if err == nil || !worker.IsPermanent(err) {
		t.Fatalf("expected permanent error for missing contract, got %v", err)
	}
}

func TestRunSchemaViolationIsPermanent(t *testing.T) {
	client := &stubLLM{raw: `{"summary": "missing required keys"}`}
	engine, repo, store := newEngine(t, client, stubExtractor{})
	contractID := seed(t, repo, store, "some text")

	_, err := engine.run(context.Background(), basicJob(contractID))
	if err == nil || !worker.IsPermanent(err) {
		t.Fatalf("expected permanent error for schema violation, got %v", err)
	}
}

func TestRunRetriesTransientLLMFailures(t *testing.T) {
	client := &stubLLM{raw: validBasicResult, fail: 2}
	engine, repo, store := newEngine(t, client, stubExtractor{})
	contractID := seed(t, repo, store, "some text")

	if _, err := engine.run(context.Background(), basicJob(contractID)); err != nil {
		t.Fatalf("run: %v", err)
	}
	if client.attempts != 3 {
		t.Fatalf("expected 3 LLM attempts, got %d", client.attempts)
	}
}

func TestCostCentsRoundsUp(t *testing.T) {
	cases := map[int]int{0: 0, 1: 1, 999: 1, 1000: 1, 1001: 2, 2500: 3}
	for tokens, want := range cases {
		if got := costCents(tokens); got != want {
			t.Errorf("costCents(%d) = %d, want %d", tokens, got, want)
		}
	}
}
