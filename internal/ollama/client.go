// Package ollama calls a local LLM to extract structured receipt data
// from free text, refining the regex-based suggestions on request.
package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Defaults for a stock local Ollama install.
const (
	DefaultHost    = "http://localhost:11434"
	DefaultModel   = "phi3"
	DefaultTimeout = 30 * time.Second
)

const promptTemplate = `Extrahiere aus diesem deutschen Beleg/Rechnung:

%s

Antworte NUR mit JSON (keine Erklärung):
{"vendor": "Firmenname oder null", "amount": "XX.XX oder null", "currency": "EUR/USD/CHF oder null", "date": "TT.MM.JJJJ oder null"}`

// Extraction holds the fields the model produced. Empty strings mean
// the model had no answer for that field.
type Extraction struct {
	Vendor   string `json:"vendor"`
	Amount   string `json:"amount"`
	Currency string `json:"currency"`
	Date     string `json:"date"`
}

// HasData reports whether any field was extracted.
func (e Extraction) HasData() bool {
	return e.Vendor != "" || e.Amount != "" || e.Currency != "" || e.Date != ""
}

// Client talks to an Ollama server.
type Client struct {
	host       string
	model      string
	httpClient *http.Client
}

// NewClient creates a client for the Ollama server at host using the
// given model. Empty arguments fall back to the defaults.
func NewClient(host, model string, timeout time.Duration) *Client {
	if host == "" {
		host = DefaultHost
	}
	if model == "" {
		model = DefaultModel
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		host:       strings.TrimRight(host, "/"),
		model:      model,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Available probes the server's tag list to see whether Ollama is
// running at all. The probe uses a short deadline independent of the
// generation timeout.
func (c *Client) Available(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(
		ctx, http.MethodGet, c.host+"/api/tags", nil,
	)
	if err != nil {
		return false
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// generateRequest is the Ollama /api/generate payload.
type generateRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Stream bool   `json:"stream"`
}

// generateResponse is the non-streaming /api/generate answer.
type generateResponse struct {
	Response string `json:"response"`
}

// Extract asks the model for vendor, amount, currency, and date from
// text. An unreachable server or an unparseable answer degrades to an
// empty Extraction, the fallback is advisory only.
func (c *Client) Extract(ctx context.Context, text string) Extraction {
	if text == "" {
		return Extraction{}
	}

	response, err := c.generate(ctx, fmt.Sprintf(promptTemplate, text))
	if err != nil {
		return Extraction{}
	}

	return parseResponse(response)
}

// generate calls /api/generate and returns the raw model response.
func (c *Client) generate(ctx context.Context, prompt string) (string, error) {
	payload, err := json.Marshal(generateRequest{
		Model:  c.model,
		Prompt: prompt,
		Stream: false,
	})
	if err != nil {
		return "", fmt.Errorf("marshaling generate request: %w", err)
	}

	req, err := http.NewRequestWithContext(
		ctx, http.MethodPost, c.host+"/api/generate", bytes.NewReader(payload),
	)
	if err != nil {
		return "", fmt.Errorf("building generate request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("calling ollama: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("ollama returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("reading ollama response: %w", err)
	}

	var result generateResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return "", fmt.Errorf("decoding ollama response: %w", err)
	}
	return result.Response, nil
}

// fencePattern strips a markdown code fence around the JSON answer,
// which smaller models emit despite being told not to.
var fencePattern = regexp.MustCompile("(?s)```(?:json)?\\s*(\\{.*?\\})\\s*```")

// parseResponse decodes the model's JSON answer, tolerating markdown
// fences, literal "null"/"none" strings, and values the model emits as
// numbers or JSON null instead of strings.
func parseResponse(response string) Extraction {
	jsonStr := strings.TrimSpace(response)
	if m := fencePattern.FindStringSubmatch(response); m != nil {
		jsonStr = m[1]
	}

	var raw map[string]any
	if err := json.Unmarshal([]byte(jsonStr), &raw); err != nil {
		return Extraction{}
	}

	return Extraction{
		Vendor:   cleanValue(raw["vendor"]),
		Amount:   cleanValue(raw["amount"]),
		Currency: cleanValue(raw["currency"]),
		Date:     cleanValue(raw["date"]),
	}
}

// cleanValue stringifies a decoded JSON value and maps the model's
// textual nulls to the empty string.
func cleanValue(value any) string {
	var text string
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		text = v
	case float64:
		text = strconv.FormatFloat(v, 'f', -1, 64)
	default:
		text = fmt.Sprint(v)
	}
	text = strings.TrimSpace(text)
	switch strings.ToLower(text) {
	case "null", "none":
		return ""
	}
	return text
}
