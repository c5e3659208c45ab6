// Package qa is a thin HTTP client for an extractive question-answering
// inference endpoint (HF pipeline wire format: question + context in,
// answer span + score out).
package qa

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"pdf-miner/internal/config"
)

type Client struct {
	baseURL string
	model   string
	client  *http.Client
}

// Answer is one extracted answer span with the model's confidence.
type Answer struct {
	Text       string  `json:"answer"`
	Confidence float64 `json:"score"`
	Start      int     `json:"start"`
	End        int     `json:"end"`
}

func New(cfg config.QAConfig) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("qa base_url is required")
	}
	timeout := time.Duration(cfg.TimeoutSecs) * time.Second
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		model:   cfg.Model,
		client:  &http.Client{Timeout: timeout},
	}, nil
}

// Extract runs the QA model with question against the context passage.
func (c *Client) Extract(ctx context.Context, question, passage string) (Answer, error) {
	payload := struct {
		Model  string `json:"model,omitempty"`
		Inputs struct {
			Question string `json:"question"`
			Context  string `json:"context"`
		} `json:"inputs"`
	}{Model: c.model}
	payload.Inputs.Question = question
	payload.Inputs.Context = passage

	body, err := json.Marshal(payload)
	if err != nil {
		return Answer{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/question-answering", bytes.NewBuffer(body))
	if err != nil {
		return Answer{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return Answer{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		return Answer{}, fmt.Errorf("qa request failed: %d, %s", resp.StatusCode, string(raw))
	}

	var answer Answer
	if err := json.NewDecoder(resp.Body).Decode(&answer); err != nil {
		return Answer{}, fmt.Errorf("qa response unreadable: %v", err)
	}
	return answer, nil
}
