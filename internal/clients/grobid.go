/**
 * GROBID Client for the Figure Processing Worker
 *
 * Submits a PDF to a running GROBID service and extracts:
 * - Body paragraphs, in document order, for mention linking
 * - Paper title (article-level title preferred)
 * - Author names assembled from TEI persName substructures
 *
 * The TEI response is parsed with a lenient HTML parser rather than a strict
 * XML decoder: GROBID output is XML-ish and the relevant elements survive
 * HTML normalization (tag names are lowercased, e.g. persName -> persname).
 */

package clients

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/figstudio/figprocess-worker/internal/logging"
	"golang.org/x/net/html"
)

// GrobidClient handles communication with the GROBID service
type GrobidClient struct {
	baseURL    string
	httpClient *http.Client
	logger     *logging.Logger
}

// PaperMetadata contains bibliographic metadata extracted from the TEI header
type PaperMetadata struct {
	Title   string   `json:"title"`
	Authors []string `json:"authors"`
}

// AuthorName is one structured author name split out of a TEI persName node
type AuthorName struct {
	First  string
	Middle []string
	Last   string
	Suffix string
}

// NewGrobidClient creates a new GROBID client. timeout bounds the whole
// fulltext request.
func NewGrobidClient(baseURL string, timeout time.Duration) *GrobidClient {
	if timeout <= 0 {
		timeout = 90 * time.Second
	}
	return &GrobidClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: logging.NewLogger("GrobidClient"),
	}
}

// HealthCheck verifies the GROBID service is available
func (c *GrobidClient) HealthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, "GET", c.baseURL+"/api/isalive", nil)
	if err != nil {
		return fmt.Errorf("failed to create health check request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("GROBID health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("GROBID health check returned status %d", resp.StatusCode)
	}

	return nil
}

// ParseParagraphs submits the PDF at pdfPath to GROBID's fulltext endpoint and
// returns the ordered paragraph texts plus paper metadata.
func (c *GrobidClient) ParseParagraphs(ctx context.Context, pdfPath string) ([]string, *PaperMetadata, error) {
	file, err := os.Open(pdfPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open PDF: %w", err)
	}
	defer file.Close()

	// Build multipart body with the PDF under the "input" field
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("input", filepath.Base(pdfPath))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := io.Copy(part, file); err != nil {
		return nil, nil, fmt.Errorf("failed to copy PDF into request: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, nil, fmt.Errorf("failed to finalize multipart body: %w", err)
	}

	endpoint := c.baseURL + "/api/processFulltextDocument"
	req, err := http.NewRequestWithContext(ctx, "POST", endpoint, &body)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	c.logger.Info("Submitting PDF to GROBID", "pdf", filepath.Base(pdfPath), "endpoint", endpoint)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("request to GROBID failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read GROBID response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, nil, fmt.Errorf("GROBID returned error status %d: %s", resp.StatusCode, truncateForLog(string(respBody), 200))
	}

	doc, err := html.Parse(bytes.NewReader(respBody))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to parse GROBID TEI response: %w", err)
	}

	paragraphs := extractParagraphs(doc)
	metadata := &PaperMetadata{
		Title:   extractTitle(doc),
		Authors: formatAuthors(extractAuthorNames(doc)),
	}

	c.logger.Info("GROBID extraction complete",
		"paragraphs", len(paragraphs),
		"authors", len(metadata.Authors),
		"title", truncateForLog(metadata.Title, 60))

	return paragraphs, metadata, nil
}

// extractParagraphs collects the text of every <p> element in document order
func extractParagraphs(doc *html.Node) []string {
	var paragraphs []string
	for _, p := range findAll(doc, "p") {
		paragraphs = append(paragraphs, nodeText(p))
	}
	return paragraphs
}

// extractTitle returns the article-level title when present.
//
// Policy: prefer a <title> whose level attribute equals "a" (article level);
// fall back to the first <title> in the document; fall back to the empty
// string. Never fails.
func extractTitle(doc *html.Node) string {
	titles := findAll(doc, "title")
	for _, t := range titles {
		if attr(t, "level") == "a" {
			return nodeText(t)
		}
	}
	if len(titles) > 0 {
		return nodeText(titles[0])
	}
	return ""
}

// extractAuthorNames splits every <author> node with a persName substructure
// into first/middle/last/suffix parts. Authors without a persName are skipped.
//
// Only the first forename tagged type="first" becomes the first name; later
// "first"-typed forenames are treated as middle names alongside the
// "middle"-typed ones. With multiple surnames, all but the last are folded
// into the middle names.
func extractAuthorNames(doc *html.Node) []AuthorName {
	var names []AuthorName

	for _, author := range findAll(doc, "author") {
		persName := findFirst(author, "persname")
		if persName == nil {
			continue
		}

		forenames := findAll(persName, "forename")
		surnames := findAll(persName, "surname")
		suffixes := findAll(persName, "suffix")

		var name AuthorName

		for _, forename := range forenames {
			switch attr(forename, "type") {
			case "first":
				if name.First == "" {
					name.First = nodeText(forename)
				} else {
					name.Middle = append(name.Middle, nodeText(forename))
				}
			case "middle":
				name.Middle = append(name.Middle, nodeText(forename))
			}
		}

		if len(surnames) > 1 {
			for _, surname := range surnames[:len(surnames)-1] {
				name.Middle = append(name.Middle, nodeText(surname))
			}
			name.Last = nodeText(surnames[len(surnames)-1])
		} else if len(surnames) == 1 {
			name.Last = nodeText(surnames[0])
		}

		if len(suffixes) > 0 {
			parts := make([]string, 0, len(suffixes))
			for _, s := range suffixes {
				parts = append(parts, nodeText(s))
			}
			name.Suffix = strings.Join(parts, " ")
		}

		names = append(names, name)
	}

	return names
}

// formatAuthors renders each author as "First Middle Last". An author with no
// middle names keeps a double space between first and last.
func formatAuthors(names []AuthorName) []string {
	authors := make([]string, 0, len(names))
	for _, n := range names {
		authors = append(authors, fmt.Sprintf("%s %s %s", n.First, strings.Join(n.Middle, " "), n.Last))
	}
	return authors
}

// findAll returns every element named tag under n, in depth-first order
func findAll(n *html.Node, tag string) []*html.Node {
	var matches []*html.Node
	var walk func(*html.Node)
	walk = func(node *html.Node) {
		if node.Type == html.ElementNode && node.Data == tag {
			matches = append(matches, node)
		}
		for child := node.FirstChild; child != nil; child = child.NextSibling {
			walk(child)
		}
	}
	walk(n)
	return matches
}

// findFirst returns the first element named tag under n, or nil
func findFirst(n *html.Node, tag string) *html.Node {
	if n.Type == html.ElementNode && n.Data == tag {
		return n
	}
	for child := n.FirstChild; child != nil; child = child.NextSibling {
		if found := findFirst(child, tag); found != nil {
			return found
		}
	}
	return nil
}

// nodeText concatenates all descendant text of n
func nodeText(n *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(node *html.Node) {
		if node.Type == html.TextNode {
			sb.WriteString(node.Data)
		}
		for child := node.FirstChild; child != nil; child = child.NextSibling {
			walk(child)
		}
	}
	walk(n)
	return sb.String()
}

// attr returns the value of the named attribute on n, or ""
func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func truncateForLog(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
