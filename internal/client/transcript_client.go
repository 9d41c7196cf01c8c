package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/studyforge/api/internal/config"
	"github.com/studyforge/api/internal/model"
)

// TranscriptClient handles communication with the transcription provider.
// One FetchTranscript call is a single attempt from the retrier's point of
// view: submit, poll to completion, download paragraphs.
type TranscriptClient struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string

	pollInterval time.Duration
	pollTimeout  time.Duration
}

type transcriptSubmission struct {
	AudioURL    string `json:"audio_url"`
	SpeechModel string `json:"speech_model,omitempty"`
}

type transcriptStatus struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

type paragraphsResponse struct {
	Paragraphs []struct {
		Start int    `json:"start"`
		Text  string `json:"text"`
	} `json:"paragraphs"`
}

// NewTranscriptClient creates a transcription client. When routes is
// non-nil, outbound calls follow its current proxy route.
func NewTranscriptClient(cfg *config.TranscriptionConfig, routes *ProxyRouteProvider) *TranscriptClient {
	httpClient := &http.Client{Timeout: 60 * time.Second}
	if routes != nil {
		httpClient.Transport = &http.Transport{Proxy: routes.ProxyFunc}
	}

	return &TranscriptClient{
		httpClient:   httpClient,
		baseURL:      cfg.BaseURL,
		apiKey:       cfg.APIKey,
		pollInterval: 3 * time.Second,
		pollTimeout:  10 * time.Minute,
	}
}

// FetchTranscript submits the audio for transcription and returns the timed
// paragraphs once processing finishes.
func (c *TranscriptClient) FetchTranscript(ctx context.Context, audioURL string, speechModel model.SpeechModel) ([]model.TranscriptParagraph, error) {
	id, err := c.submit(ctx, audioURL, speechModel)
	if err != nil {
		return nil, err
	}

	if err := c.pollStatus(ctx, id); err != nil {
		return nil, err
	}

	return c.fetchParagraphs(ctx, id)
}

// IsConfigured returns true if the client has an API key
func (c *TranscriptClient) IsConfigured() bool {
	return c.apiKey != ""
}

func (c *TranscriptClient) submit(ctx context.Context, audioURL string, speechModel model.SpeechModel) (string, error) {
	body, err := json.Marshal(&transcriptSubmission{
		AudioURL:    audioURL,
		SpeechModel: string(speechModel),
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal submission: %w", err)
	}

	var status transcriptStatus
	if err := c.doJSON(ctx, http.MethodPost, "/transcript", bytes.NewReader(body), &status); err != nil {
		return "", fmt.Errorf("failed to submit transcript: %w", err)
	}
	if status.ID == "" {
		return "", fmt.Errorf("transcription provider returned no id")
	}
	return status.ID, nil
}

func (c *TranscriptClient) pollStatus(ctx context.Context, id string) error {
	deadline := time.Now().Add(c.pollTimeout)
	attempt := 0

	for time.Now().Before(deadline) {
		attempt++

		var status transcriptStatus
		err := c.doJSON(ctx, http.MethodGet, "/transcript/"+id, nil, &status)
		if err != nil {
			log.Printf("[Transcription] Poll #%d (id=%s) - error: %v", attempt, id, err)
			return err
		}

		log.Printf("[Transcription] Poll #%d (id=%s) - status: %s", attempt, id, status.Status)

		switch status.Status {
		case "completed":
			return nil
		case "error":
			return fmt.Errorf("transcription failed: %s", status.Error)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(c.pollInterval):
		}
	}

	return fmt.Errorf("transcription timed out after %s", c.pollTimeout)
}

func (c *TranscriptClient) fetchParagraphs(ctx context.Context, id string) ([]model.TranscriptParagraph, error) {
	var resp paragraphsResponse
	if err := c.doJSON(ctx, http.MethodGet, "/transcript/"+id+"/paragraphs", nil, &resp); err != nil {
		return nil, fmt.Errorf("failed to fetch paragraphs: %w", err)
	}

	paragraphs := make([]model.TranscriptParagraph, 0, len(resp.Paragraphs))
	for _, p := range resp.Paragraphs {
		paragraphs = append(paragraphs, model.TranscriptParagraph{
			Offset: p.Start,
			Text:   p.Text,
		})
	}
	return paragraphs, nil
}

func (c *TranscriptClient) doJSON(ctx context.Context, method, path string, body io.Reader, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Authorization", c.apiKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("transcription API returned status %d: %s", resp.StatusCode, string(respBody))
	}

	if out != nil {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("failed to unmarshal response: %w", err)
		}
	}
	return nil
}
