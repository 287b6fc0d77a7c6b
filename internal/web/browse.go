package web

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"

	"golang.org/x/net/html"
)

const maxPageBytes = 2 << 20

var (
	multiNewline = regexp.MustCompile(`\n{3,}`)
	multiSpace   = regexp.MustCompile(`[ \t]{2,}`)
)

// Browse fetches a URL and extracts its readable text. Like Search, it
// reports failures as plain strings so the agent loop can hand them to
// the model.
func (c *Client) Browse(ctx context.Context, pageURL string) string {
	content, err := c.fetch(ctx, pageURL)
	if err != nil {
		return fmt.Sprintf("Error browsing %s: %v", pageURL, err)
	}
	if content == "" {
		return "Failed to extract readable content from the page."
	}
	return fmt.Sprintf("Content of %s:\n\n%s", pageURL, content)
}

func (c *Client) fetch(ctx context.Context, pageURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("HTTP %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPageBytes))
	if err != nil {
		return "", err
	}

	contentType := resp.Header.Get("Content-Type")
	if strings.Contains(contentType, "text/plain") {
		return strings.TrimSpace(string(body)), nil
	}
	return extractReadable(string(body))
}

// extractReadable strips markup down to the page's text, keeping heading
// and list structure so the model sees the document shape.
func extractReadable(page string) (string, error) {
	doc, err := html.Parse(strings.NewReader(page))
	if err != nil {
		return "", fmt.Errorf("parse page: %w", err)
	}
	var sb strings.Builder
	renderText(doc, &sb, 0)
	return tidy(sb.String()), nil
}

func renderText(n *html.Node, sb *strings.Builder, depth int) {
	if depth > 50 {
		return
	}
	switch n.Type {
	case html.TextNode:
		if text := strings.TrimSpace(n.Data); text != "" {
			sb.WriteString(text)
			sb.WriteString(" ")
		}
	case html.ElementNode:
		switch n.Data {
		case "script", "style", "noscript", "iframe", "svg", "nav", "footer", "header":
			return
		case "h1", "h2", "h3", "h4", "h5", "h6":
			sb.WriteString("\n\n")
			sb.WriteString(strings.Repeat("#", int(n.Data[1]-'0')))
			sb.WriteString(" ")
		case "p", "div":
			sb.WriteString("\n\n")
		case "br":
			sb.WriteString("\n")
		case "li":
			sb.WriteString("\n- ")
		case "pre":
			sb.WriteString("\n\n")
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		renderText(c, sb, depth+1)
	}
	if n.Type == html.ElementNode {
		switch n.Data {
		case "h1", "h2", "h3", "h4", "h5", "h6", "pre":
			sb.WriteString("\n\n")
		}
	}
}

func tidy(s string) string {
	s = multiNewline.ReplaceAllString(s, "\n\n")
	s = multiSpace.ReplaceAllString(s, " ")
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(line)
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}
