package extractor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"contracts-backend/internal/shared/storage/object"
)

// Client talks to the external text-extraction service. The service accepts
// the raw document and returns plain text.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient constructs an extraction client. baseURL must point at the
// service root, e.g. http://extractor:8090.
func NewClient(baseURL string) (*Client, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, errors.New("EXTRACTOR_URL is required")
	}
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}, nil
}

type keySaver interface {
	SaveWithKey(ctx context.Context, storageKey string, contentType string, r io.Reader) (int64, error)
}

// ExtractText pulls text from a stored contract document and persists a
// derived .extracted.txt copy next to it. Returns the text and the key of
// the derived copy.
func (c *Client) ExtractText(ctx context.Context, store object.ObjectStore, fileKey, mimeType string) (string, string, error) {
	body, err := store.Open(ctx, fileKey)
	if err != nil {
		return "", "", fmt.Errorf("extract text key=%s: %w", fileKey, err)
	}
	defer body.Close()

	text, err := c.extract(ctx, body, mimeType)
	if err != nil {
		return "", "", fmt.Errorf("extract text key=%s mime=%s: %w", fileKey, mimeType, err)
	}

	extractedKey := fileKey + ".extracted.txt"
	if err := saveExtracted(ctx, store, extractedKey, text); err != nil {
		return "", "", fmt.Errorf("extract text key=%s: %w", fileKey, err)
	}
	return text, extractedKey, nil
}

func (c *Client) extract(ctx context.Context, document io.Reader, mimeType string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/extract", document)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", mimeType)
	req.Header.Set("Accept", "text/plain")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return "", err
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("extractor status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	text := strings.TrimSpace(string(raw))
	if text == "" {
		return "", errors.New("extractor returned empty text")
	}
	return text, nil
}

func saveExtracted(ctx context.Context, store object.ObjectStore, key, text string) error {
	saver, ok := store.(keySaver)
	if !ok {
		return errors.New("object store does not support SaveWithKey")
	}
	_, err := saver.SaveWithKey(ctx, key, "text/plain; charset=utf-8", strings.NewReader(text))
	return err
}
