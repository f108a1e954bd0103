package web

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func fetch(t *testing.T, tool *FetchTool, args map[string]interface{}) (string, string, bool) {
	t.Helper()
	raw, err := json.Marshal(args)
	if err != nil {
		t.Fatal(err)
	}
	res, err := tool.Execute(context.Background(), raw)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	return res.Output, res.Message, res.IsError
}

func TestFetchExtractsHTML(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(`<html><head><title>Doc</title><script>evil()</script></head>
			<body><nav>menu</nav><p>Useful &amp; readable content.</p></body></html>`))
	}))
	defer srv.Close()

	tool := newFetchToolForTesting(srv.Client())
	out, _, isErr := fetch(t, tool, map[string]interface{}{"url": srv.URL})
	if isErr {
		t.Fatalf("errored: %s", out)
	}
	if !strings.Contains(out, "Useful & readable content.") {
		t.Errorf("output = %q", out)
	}
	if strings.Contains(out, "evil") || strings.Contains(out, "menu") {
		t.Errorf("chrome not stripped: %q", out)
	}
}

func TestFetchPlainTextPassthrough(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.Write([]byte("raw <data>"))
	}))
	defer srv.Close()

	tool := newFetchToolForTesting(srv.Client())
	out, _, isErr := fetch(t, tool, map[string]interface{}{"url": srv.URL})
	if isErr || out != "raw <data>" {
		t.Errorf("output = %q, isErr = %v", out, isErr)
	}
}

func TestFetchTruncates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.Write([]byte(strings.Repeat("a", 100)))
	}))
	defer srv.Close()

	tool := newFetchToolForTesting(srv.Client())
	out, msg, _ := fetch(t, tool, map[string]interface{}{"url": srv.URL, "max_chars": 10})
	if len(out) != 10 || !strings.Contains(msg, "Truncated") {
		t.Errorf("out = %q, msg = %q", out, msg)
	}
}

func TestFetchStatusError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	tool := newFetchToolForTesting(srv.Client())
	out, _, isErr := fetch(t, tool, map[string]interface{}{"url": srv.URL})
	if !isErr || !strings.Contains(out, "404") {
		t.Errorf("out = %q, isErr = %v", out, isErr)
	}
}

func TestFetchRejectsBadURLs(t *testing.T) {
	tool := NewFetchTool()
	for _, u := range []string{"ftp://example.com/x", "not a url at all", "http://"} {
		_, _, isErr := fetch(t, tool, map[string]interface{}{"url": u})
		if !isErr {
			t.Errorf("url %q accepted", u)
		}
	}
}

func TestFetchRefusesPrivateAddresses(t *testing.T) {
	tool := NewFetchTool()
	out, _, isErr := fetch(t, tool, map[string]interface{}{"url": "http://127.0.0.1/secret"})
	if !isErr || !strings.Contains(out, "private or reserved") {
		t.Errorf("out = %q, isErr = %v", out, isErr)
	}
}
