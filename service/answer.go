package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/Legalphoenix/tabular-review/config"
)

// AnswerService calls the remote answer-generation collaborator. The request
// carries either a raw file payload or an annotated-document path reference,
// plus the final prompt; the response is {"answer": ...} on success or
// {"error": ...} with a non-2xx status.
type AnswerService struct {
	config     *config.ServicesConfig
	suggestURL string
	httpClient *http.Client
}

// AnswerResponse is the answer-generation response envelope
type AnswerResponse struct {
	Answer string `json:"answer"`
	Error  string `json:"error,omitempty"`
}

// SuggestPromptRequest asks for a drafted question for a column definition
type SuggestPromptRequest struct {
	Label  string `json:"label"`
	Format string `json:"format"`
}

// SuggestPromptResponse is the prompt-suggestion response envelope
type SuggestPromptResponse struct {
	SuggestedPrompt string `json:"suggested_prompt"`
	Error           string `json:"error,omitempty"`
}

func NewAnswerService(cfg *config.ServicesConfig) *AnswerService {
	suggestURL := cfg.SuggestURL
	if suggestURL == "" {
		// config.Load derives this default too; repeated here for services
		// constructed from a hand-built config
		suggestURL = cfg.AnswerURL + "_prompt"
	}
	return &AnswerService{
		config:     cfg,
		suggestURL: suggestURL,
		httpClient: &http.Client{
			Timeout: time.Duration(cfg.TimeoutSeconds) * time.Second,
		},
	}
}

// Generate asks the answering service about the annotated document. The
// annotatedPath references a preprocessed PDF the service can resolve; the
// service reads the document itself, so no payload travels here.
func (s *AnswerService) Generate(ctx context.Context, annotatedPath, prompt string) (string, error) {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	if err := writer.WriteField("annotated_path", annotatedPath); err != nil {
		return "", fmt.Errorf("failed to build request: %w", err)
	}
	if err := writer.WriteField("prompt", prompt); err != nil {
		return "", fmt.Errorf("failed to build request: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("failed to build request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", s.config.AnswerURL, &body)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to reach answering service: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}

	var result AnswerResponse
	// The response shape is remote-controlled; tolerate junk and fall back
	// to the status code.
	if err := json.Unmarshal(respBody, &result); err != nil {
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return "", fmt.Errorf("answering service returned status %d", resp.StatusCode)
		}
		return "", fmt.Errorf("failed to parse response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if result.Error != "" {
			return "", fmt.Errorf("answering service error: %s", result.Error)
		}
		return "", fmt.Errorf("answering service returned status %d", resp.StatusCode)
	}

	// Missing answer field degrades to an empty answer, not an error
	return result.Answer, nil
}

// SuggestPrompt drafts a question for a column label and format
func (s *AnswerService) SuggestPrompt(ctx context.Context, label, format string) (string, error) {
	payload, err := json.Marshal(SuggestPromptRequest{Label: label, Format: format})
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", s.suggestURL, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to reach answering service: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}

	var result SuggestPromptResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return "", fmt.Errorf("failed to parse response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if result.Error != "" {
			return "", fmt.Errorf("prompt suggestion error: %s", result.Error)
		}
		return "", fmt.Errorf("prompt suggestion returned status %d", resp.StatusCode)
	}

	return result.SuggestedPrompt, nil
}
