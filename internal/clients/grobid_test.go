package clients

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const teiSample = `<?xml version="1.0" encoding="UTF-8"?>
<TEI xmlns="http://www.tei-c.org/ns/1.0">
  <teiHeader>
    <fileDesc>
      <titleStmt>
        <title level="a" type="main">Attention Is All You Need</title>
      </titleStmt>
      <sourceDesc>
        <biblStruct>
          <analytic>
            <author>
              <persName>
                <forename type="first">Ashish</forename>
                <surname>Vaswani</surname>
              </persName>
            </author>
            <author>
              <persName>
                <forename type="first">Niki</forename>
                <forename type="middle">J</forename>
                <surname>Parmar</surname>
              </persName>
            </author>
            <author>
              <affiliation>Google Brain</affiliation>
            </author>
          </analytic>
          <monogr>
            <title level="m">NeurIPS Proceedings</title>
          </monogr>
        </biblStruct>
      </sourceDesc>
    </fileDesc>
  </teiHeader>
  <text>
    <body>
      <div><p>First paragraph about transformers.</p></div>
      <div><p>Second paragraph, see Figure 1.</p></div>
      <div><p>Third paragraph with results.</p></div>
    </body>
  </text>
</TEI>`

func newTEIServer(t *testing.T, body string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/processFulltextDocument", r.URL.Path)
		require.Equal(t, http.MethodPost, r.Method)

		file, _, err := r.FormFile("input")
		require.NoError(t, err, "PDF must be sent under the multipart field 'input'")
		file.Close()

		w.Header().Set("Content-Type", "application/xml")
		w.Write([]byte(body))
	}))
}

func writeTestPDF(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "paper.pdf")
	require.NoError(t, os.WriteFile(path, []byte("%PDF-1.5 test"), 0644))
	return path
}

func TestParseParagraphsExtractsOrderedParagraphs(t *testing.T) {
	server := newTEIServer(t, teiSample)
	defer server.Close()

	client := NewGrobidClient(server.URL, 10*time.Second)
	paragraphs, metadata, err := client.ParseParagraphs(context.Background(), writeTestPDF(t))
	require.NoError(t, err)

	assert.Equal(t, []string{
		"First paragraph about transformers.",
		"Second paragraph, see Figure 1.",
		"Third paragraph with results.",
	}, paragraphs)

	require.NotNil(t, metadata)
	assert.Equal(t, "Attention Is All You Need", metadata.Title)
}

func TestParseParagraphsAuthorFormatting(t *testing.T) {
	server := newTEIServer(t, teiSample)
	defer server.Close()

	client := NewGrobidClient(server.URL, 10*time.Second)
	_, metadata, err := client.ParseParagraphs(context.Background(), writeTestPDF(t))
	require.NoError(t, err)

	// An author with no middle names keeps the double space; authors without
	// a persName node are skipped entirely.
	assert.Equal(t, []string{
		"Ashish  Vaswani",
		"Niki J Parmar",
	}, metadata.Authors)
}

func TestParseParagraphsServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "GROBID overloaded", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client := NewGrobidClient(server.URL, 10*time.Second)
	_, _, err := client.ParseParagraphs(context.Background(), writeTestPDF(t))
	assert.Error(t, err)
}

func TestHealthCheck(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/isalive" {
			w.WriteHeader(http.StatusOK)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	client := NewGrobidClient(server.URL, 5*time.Second)
	assert.NoError(t, client.HealthCheck(context.Background()))
}

func TestExtractTitlePolicy(t *testing.T) {
	tests := []struct {
		name string
		tei  string
		want string
	}{
		{
			name: "prefers article-level title",
			tei:  `<TEI><title level="m">Proceedings</title><title level="a">The Paper</title></TEI>`,
			want: "The Paper",
		},
		{
			name: "falls back to first title",
			tei:  `<TEI><title level="m">Proceedings</title><title>Other</title></TEI>`,
			want: "Proceedings",
		},
		{
			name: "no titles",
			tei:  `<TEI><body><p>text</p></body></TEI>`,
			want: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := newTEIServer(t, tt.tei)
			defer server.Close()

			client := NewGrobidClient(server.URL, 10*time.Second)
			_, metadata, err := client.ParseParagraphs(context.Background(), writeTestPDF(t))
			require.NoError(t, err)
			assert.Equal(t, tt.want, metadata.Title)
		})
	}
}

func TestAuthorNameQuirks(t *testing.T) {
	tei := `<TEI>
	  <author>
	    <persName>
	      <forename type="first">Mary</forename>
	      <forename type="first">Jo</forename>
	      <forename type="middle">Ann</forename>
	      <surname>van</surname>
	      <surname>Dyke</surname>
	    </persName>
	  </author>
	</TEI>`

	server := newTEIServer(t, tei)
	defer server.Close()

	client := NewGrobidClient(server.URL, 10*time.Second)
	_, metadata, err := client.ParseParagraphs(context.Background(), writeTestPDF(t))
	require.NoError(t, err)

	// Extra "first"-typed forenames and all-but-last surnames fold into the
	// middle names.
	require.Len(t, metadata.Authors, 1)
	assert.Equal(t, "Mary Jo Ann van Dyke", metadata.Authors[0])
}
