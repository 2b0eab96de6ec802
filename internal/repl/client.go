// Package repl holds the HTTP client the interactive terminal uses to talk
// to a running migrachat API server.
package repl

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/migrachat/migrachat/internal/chat"
	"github.com/migrachat/migrachat/internal/schema"
)

type Options struct {
	BaseURL    string
	Timeout    time.Duration
	HTTPClient *http.Client
}

type Client struct {
	baseURL string
	http    *http.Client
}

type Answer struct {
	Answer     string `json:"answer"`
	Terminated bool   `json:"terminated"`
}

type Status struct {
	DBConnected    bool `json:"db_connected"`
	QuestionsAsked int  `json:"questions_asked"`
}

type SchemaInfo struct {
	Database string         `json:"database"`
	Tables   []schema.Table `json:"tables"`
}

func NewClient(options Options) (*Client, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(options.BaseURL), "/")
	if baseURL == "" {
		return nil, fmt.Errorf("base url is required")
	}
	httpClient := options.HTTPClient
	if httpClient == nil {
		timeout := options.Timeout
		if timeout <= 0 {
			timeout = 2 * time.Minute
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	return &Client{baseURL: baseURL, http: httpClient}, nil
}

func (c *Client) Submit(ctx context.Context, question string) (Answer, error) {
	var out Answer
	err := c.do(ctx, http.MethodPost, "/v1/chat", map[string]string{"question": question}, &out)
	return out, err
}

func (c *Client) History(ctx context.Context) ([]chat.Entry, error) {
	var out struct {
		Entries []chat.Entry `json:"entries"`
	}
	err := c.do(ctx, http.MethodGet, "/v1/chat/history", nil, &out)
	return out.Entries, err
}

func (c *Client) ClearHistory(ctx context.Context) error {
	return c.do(ctx, http.MethodDelete, "/v1/chat/history", nil, nil)
}

func (c *Client) SampleQuestions(ctx context.Context) ([]string, error) {
	var out struct {
		Questions []string `json:"questions"`
	}
	err := c.do(ctx, http.MethodGet, "/v1/chat/samples", nil, &out)
	return out.Questions, err
}

func (c *Client) SetPreset(ctx context.Context, question string) error {
	return c.do(ctx, http.MethodPost, "/v1/chat/preset", map[string]string{"question": question}, nil)
}

// TakePreset returns the pending preset question, or "" when none is set.
func (c *Client) TakePreset(ctx context.Context) (string, error) {
	var out struct {
		Question string `json:"question"`
	}
	err := c.do(ctx, http.MethodGet, "/v1/chat/preset", nil, &out)
	return out.Question, err
}

func (c *Client) Status(ctx context.Context) (Status, error) {
	var out Status
	err := c.do(ctx, http.MethodGet, "/v1/status", nil, &out)
	return out, err
}

func (c *Client) SchemaInfo(ctx context.Context) (SchemaInfo, error) {
	var out SchemaInfo
	err := c.do(ctx, http.MethodGet, "/v1/schema", nil, &out)
	return out, err
}

func (c *Client) Reconnect(ctx context.Context) (Status, error) {
	var out Status
	err := c.do(ctx, http.MethodPost, "/v1/reconnect", nil, &out)
	return out, err
}

func (c *Client) do(ctx context.Context, method, path string, payload, out any) error {
	var body io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		body = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode >= 400 {
		return decodeError(resp.StatusCode, raw)
	}
	if out == nil || len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	return json.Unmarshal(raw, out)
}

func decodeError(status int, raw []byte) error {
	var envelope struct {
		ErrorCode string `json:"error_code"`
		Message   string `json:"message"`
	}
	if err := json.Unmarshal(raw, &envelope); err == nil && envelope.Message != "" {
		return fmt.Errorf("%s: %s", envelope.ErrorCode, envelope.Message)
	}
	return fmt.Errorf("http %d: %s", status, strings.TrimSpace(string(raw)))
}
