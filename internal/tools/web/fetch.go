// Package web provides the web_fetch tool: fetch a URL and return its
// readable text without browser automation. Requests to private and
// reserved address ranges are refused.
package web

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/jimihq/jimi/internal/agent"
)

const (
	defaultMaxChars  = 10_000
	maxResponseBytes = 2 << 20
	fetchTimeout     = 30 * time.Second
)

// FetchTool fetches and extracts readable content from a URL.
type FetchTool struct {
	client   *http.Client
	maxChars int

	// allowPrivate disables the SSRF guard. Tests only.
	allowPrivate bool
}

// NewFetchTool creates a web_fetch tool with default limits.
func NewFetchTool() *FetchTool {
	return &FetchTool{
		client:   &http.Client{Timeout: fetchTimeout},
		maxChars: defaultMaxChars,
	}
}

// newFetchToolForTesting skips the private-address guard so tests can hit
// httptest servers on localhost.
func newFetchToolForTesting(client *http.Client) *FetchTool {
	tool := NewFetchTool()
	if client != nil {
		tool.client = client
	}
	tool.allowPrivate = true
	return tool
}

func (t *FetchTool) Name() string { return "web_fetch" }

func (t *FetchTool) Description() string {
	return "Fetch a URL and return its readable text content."
}

func (t *FetchTool) Schema() json.RawMessage {
	schema := map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"url": map[string]interface{}{
				"type":        "string",
				"description": "URL to fetch (http or https only).",
			},
			"max_chars": map[string]interface{}{
				"type":        "integer",
				"description": "Maximum characters to return (default 10000).",
				"minimum":     0,
			},
		},
		"required": []string{"url"},
	}
	payload, err := json.Marshal(schema)
	if err != nil {
		return json.RawMessage(`{"type":"object"}`)
	}
	return payload
}

func (t *FetchTool) Execute(ctx context.Context, params json.RawMessage) (*agent.ToolResult, error) {
	var input struct {
		URL      string `json:"url"`
		MaxChars int    `json:"max_chars"`
	}
	if err := json.Unmarshal(params, &input); err != nil {
		return &agent.ToolResult{Output: fmt.Sprintf("invalid parameters: %v", err), IsError: true}, nil
	}

	if err := t.validateURL(input.URL); err != nil {
		return &agent.ToolResult{Output: err.Error(), IsError: true}, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, input.URL, nil)
	if err != nil {
		return &agent.ToolResult{Output: fmt.Sprintf("build request: %v", err), IsError: true}, nil
	}
	req.Header.Set("User-Agent", "jimi/1.0 (+https://github.com/jimihq/jimi)")

	resp, err := t.client.Do(req)
	if err != nil {
		return &agent.ToolResult{Output: fmt.Sprintf("fetch failed: %v", err), IsError: true}, nil
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return &agent.ToolResult{
			Output:  fmt.Sprintf("fetch failed: HTTP %d", resp.StatusCode),
			IsError: true,
		}, nil
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return &agent.ToolResult{Output: fmt.Sprintf("read response: %v", err), IsError: true}, nil
	}

	content := string(body)
	if strings.Contains(resp.Header.Get("Content-Type"), "text/html") {
		content = extractText(content)
	}

	limit := t.maxChars
	if input.MaxChars > 0 && input.MaxChars < limit {
		limit = input.MaxChars
	}
	res := &agent.ToolResult{Output: content}
	if len(content) > limit {
		res.Output = content[:limit]
		res.Message = fmt.Sprintf("Truncated at %d characters.", limit)
	}
	return res, nil
}

func (t *FetchTool) validateURL(raw string) error {
	parsed, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid url: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("only http and https urls are supported")
	}
	if parsed.Hostname() == "" {
		return fmt.Errorf("url has no host")
	}
	if t.allowPrivate {
		return nil
	}

	ips, err := net.LookupIP(parsed.Hostname())
	if err != nil {
		return fmt.Errorf("resolve host: %w", err)
	}
	for _, ip := range ips {
		if ip.IsLoopback() || ip.IsPrivate() || ip.IsLinkLocalUnicast() || ip.IsUnspecified() {
			return fmt.Errorf("refusing to fetch private or reserved address %s", ip)
		}
	}
	return nil
}

var (
	anyTagRe     = regexp.MustCompile(`(?s)<[^>]+>`)
	blankLinesRe = regexp.MustCompile(`\n{3,}`)
)

// extractText strips markup down to readable text. Chrome elements like
// scripts and navigation are removed before the generic tag strip.
func extractText(html string) string {
	for _, tag := range []string{"script", "style", "noscript", "iframe", "nav", "header", "footer", "aside"} {
		re := regexp.MustCompile(`(?is)<` + tag + `[^>]*>.*?</` + tag + `>`)
		html = re.ReplaceAllString(html, "")
	}
	text := anyTagRe.ReplaceAllString(html, "\n")
	text = strings.NewReplacer(
		"&amp;", "&",
		"&lt;", "<",
		"&gt;", ">",
		"&quot;", `"`,
		"&#39;", "'",
		"&nbsp;", " ",
	).Replace(text)

	var lines []string
	for _, line := range strings.Split(text, "\n") {
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			lines = append(lines, trimmed)
		}
	}
	return blankLinesRe.ReplaceAllString(strings.Join(lines, "\n"), "\n\n")
}
