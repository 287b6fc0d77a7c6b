package web

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

const resultsPage = `<html><body>
<div class="result results_links results_links_deep web-result">
  <a class="result__a" href="//duckduckgo.com/l/?uddg=https%3A%2F%2Fgo.dev%2Fdoc%2F&amp;rut=abc">Go Documentation</a>
  <a class="result__snippet" href="https://go.dev/doc/">Official Go documentation and tutorials.</a>
</div>
<div class="result results_links results_links_deep web-result">
  <a class="result__a" href="https://go.dev/blog/">The Go Blog</a>
  <a class="result__snippet" href="https://go.dev/blog/">News from the Go project.</a>
</div>
</body></html>`

func testClient(srv *httptest.Server) *Client {
	c := NewClient()
	c.httpClient = srv.Client()
	c.searchURL = srv.URL + "/html/"
	return c
}

func TestSearchFormatsResults(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("q"); got != "go docs" {
			t.Errorf("query = %q", got)
		}
		w.Write([]byte(resultsPage))
	}))
	defer srv.Close()

	out := testClient(srv).Search(context.Background(), "go docs")
	if !strings.Contains(out, "Search results for: go docs") {
		t.Errorf("missing header:\n%s", out)
	}
	if !strings.Contains(out, "1. Go Documentation") {
		t.Errorf("missing first result:\n%s", out)
	}
	if !strings.Contains(out, "URL: https://go.dev/doc/") {
		t.Errorf("redirect URL not unwrapped:\n%s", out)
	}
	if !strings.Contains(out, "Snippet: News from the Go project.") {
		t.Errorf("missing snippet:\n%s", out)
	}
	if !strings.Contains(out, "web_browse") {
		t.Errorf("missing browse hint:\n%s", out)
	}
}

func TestSearchNoResults(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html><body>no hits</body></html>"))
	}))
	defer srv.Close()

	out := testClient(srv).Search(context.Background(), "zxqv")
	if out != "No search results found." {
		t.Errorf("got %q", out)
	}
}

func TestSearchErrorDegradesToString(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	out := testClient(srv).Search(context.Background(), "anything")
	if !strings.HasPrefix(out, "Error performing web search:") {
		t.Errorf("got %q", out)
	}
}

func TestBrowseExtractsReadableText(t *testing.T) {
	page := `<html><head><script>var junk = 1;</script><style>body{}</style></head>
<body><nav>skip me</nav><h1>Release Notes</h1><p>Version 2.0 ships today.</p>
<ul><li>faster startup</li><li>fewer bugs</li></ul></body></html>`
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(page))
	}))
	defer srv.Close()

	out := testClient(srv).Browse(context.Background(), srv.URL)
	if !strings.HasPrefix(out, "Content of "+srv.URL+":") {
		t.Errorf("missing framing:\n%s", out)
	}
	if !strings.Contains(out, "# Release Notes") {
		t.Errorf("missing heading:\n%s", out)
	}
	if !strings.Contains(out, "Version 2.0 ships today.") {
		t.Errorf("missing body text:\n%s", out)
	}
	if strings.Contains(out, "var junk") || strings.Contains(out, "skip me") {
		t.Errorf("markup not stripped:\n%s", out)
	}
}

func TestBrowsePlainText(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.Write([]byte("just plain text\n"))
	}))
	defer srv.Close()

	out := testClient(srv).Browse(context.Background(), srv.URL)
	if !strings.Contains(out, "just plain text") {
		t.Errorf("got %q", out)
	}
}

func TestBrowseErrorDegradesToString(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	out := testClient(srv).Browse(context.Background(), srv.URL)
	if !strings.HasPrefix(out, "Error browsing ") || !strings.Contains(out, "HTTP 404") {
		t.Errorf("got %q", out)
	}
}
