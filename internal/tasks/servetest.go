package tasks

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/net/html"

	"github.com/angular/web-codegen-scorer/internal/result"
	"github.com/angular/web-codegen-scorer/internal/worker"
)

type ServeTestRequest struct {
	URL        string        `cbor:"url"`
	AppName    string        `cbor:"app_name"`
	IncludeAxe bool          `cbor:"include_axe"`
	CheckCSP   bool          `cbor:"check_csp"`
	Timeout    time.Duration `cbor:"timeout"`
}

// ServeTest loads the served app and inspects the returned document.
func ServeTest(ctx context.Context, req ServeTestRequest, progress func(worker.Progress)) (result.ServeTestingResult, error) {
	progress(worker.Progress{State: "serve-testing", Message: "Loading " + req.URL})

	d := req.Timeout
	if d <= 0 {
		d = 30 * time.Second
	}
	client := &http.Client{Timeout: d}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, req.URL, nil)
	if err != nil {
		return result.ServeTestingResult{ErrorMessage: err.Error()}, nil
	}
	resp, err := client.Do(httpReq)
	if err != nil {
		return result.ServeTestingResult{ErrorMessage: fmt.Sprintf("Could not load %s: %v", req.URL, err)}, nil
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return result.ServeTestingResult{ErrorMessage: fmt.Sprintf("Reading %s: %v", req.URL, err)}, nil
	}

	var res result.ServeTestingResult
	if resp.StatusCode >= 400 {
		res.RuntimeErrors = fmt.Sprintf("GET %s returned %s", req.URL, resp.Status)
	}

	doc, err := html.Parse(strings.NewReader(string(body)))
	if err != nil {
		res.ErrorMessage = fmt.Sprintf("Parsing document: %v", err)
		return res, nil
	}

	if req.IncludeAxe {
		progress(worker.Progress{State: "serve-testing", Message: "Checking accessibility"})
		res.AxeViolations = AuditDocument(doc)
	}
	if req.CheckCSP {
		res.CSPViolations = inlineScriptViolations(doc, resp.Header.Get("Content-Security-Policy"))
	}
	return res, nil
}

type auditRule struct {
	id, impact, description string
	check                   func(n *html.Node) bool
}

var auditRules = []auditRule{
	{"html-has-lang", "serious", "<html> element must have a lang attribute", func(n *html.Node) bool {
		return n.Data == "html" && attr(n, "lang") == ""
	}},
	{"image-alt", "critical", "Images must have alternate text", func(n *html.Node) bool {
		_, ok := lookupAttr(n, "alt")
		return n.Data == "img" && !ok && attr(n, "role") != "presentation"
	}},
	{"button-name", "critical", "Buttons must have discernible text", func(n *html.Node) bool {
		return n.Data == "button" && strings.TrimSpace(textContent(n)) == "" &&
			attr(n, "aria-label") == "" && attr(n, "title") == ""
	}},
	{"link-name", "serious", "Links must have discernible text", func(n *html.Node) bool {
		return n.Data == "a" && attr(n, "href") != "" && strings.TrimSpace(textContent(n)) == "" &&
			attr(n, "aria-label") == ""
	}},
}

// AuditDocument applies a small set of static accessibility rules. The
// result is non-nil when the audit ran, even without violations.
func AuditDocument(doc *html.Node) []result.AxeViolation {
	counts := make([]int, len(auditRules))
	hasTitle := false
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			for i, r := range auditRules {
				if r.check(n) {
					counts[i]++
				}
			}
			if n.Data == "title" && strings.TrimSpace(textContent(n)) != "" {
				hasTitle = true
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	violations := []result.AxeViolation{}
	for i, r := range auditRules {
		if counts[i] > 0 {
			violations = append(violations, result.AxeViolation{ID: r.id, Impact: r.impact, Description: r.description, Nodes: counts[i]})
		}
	}
	if !hasTitle {
		violations = append(violations, result.AxeViolation{
			ID: "document-title", Impact: "serious", Description: "Documents must have a non-empty <title>", Nodes: 1,
		})
	}
	return violations
}

func inlineScriptViolations(doc *html.Node, policy string) []string {
	if strings.Contains(policy, "'unsafe-inline'") {
		return nil
	}
	var out []string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "script" && attr(n, "src") == "" && attr(n, "nonce") == "" {
			if snippet := strings.TrimSpace(textContent(n)); snippet != "" {
				if len(snippet) > 80 {
					snippet = snippet[:80] + "..."
				}
				out = append(out, "inline script without nonce: "+snippet)
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return out
}

func lookupAttr(n *html.Node, key string) (string, bool) {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val, true
		}
	}
	return "", false
}

func attr(n *html.Node, key string) string {
	v, _ := lookupAttr(n, key)
	return v
}

func textContent(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
		}
		if n.Type == html.ElementNode && n.Data == "img" {
			b.WriteString(attr(n, "alt"))
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return b.String()
}
