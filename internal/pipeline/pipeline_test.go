package pipeline

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/figstudio/figprocess-worker/internal/clients"
	procerrors "github.com/figstudio/figprocess-worker/internal/errors"
)

type fakeFigureSource struct {
	figures []RawFigure
	err     error
}

func (f *fakeFigureSource) Extract(ctx context.Context, pdfPath string, outputDir string) ([]RawFigure, error) {
	return f.figures, f.err
}

type fakeParagraphSource struct {
	paragraphs []string
	metadata   *clients.PaperMetadata
	err        error
}

func (f *fakeParagraphSource) ParseParagraphs(ctx context.Context, pdfPath string) ([]string, *clients.PaperMetadata, error) {
	return f.paragraphs, f.metadata, f.err
}

// fakeFigureClassifier returns labels in sequence, one per call
type fakeFigureClassifier struct {
	labels []string
	err    error
	calls  int
}

func (f *fakeFigureClassifier) Classify(ctx context.Context, imagePNG []byte) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	label := f.labels[f.calls%len(f.labels)]
	f.calls++
	return label, nil
}

type fakeDetector struct {
	detections []Detection
	err        error
}

func (f *fakeDetector) DetectWords(ctx context.Context, imagePath string) ([]Detection, error) {
	return f.detections, f.err
}

type fakeTableExtractor struct {
	table string
	err   error
	calls int
}

func (f *fakeTableExtractor) ExtractTable(ctx context.Context, imagePNG []byte) (string, error) {
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	return f.table, nil
}

func newTestPipeline(t *testing.T, cfg *PipelineConfig) *PaperPipeline {
	t.Helper()
	if cfg.WorkDir == "" {
		cfg.WorkDir = t.TempDir()
	}
	return NewPaperPipeline(cfg)
}

func testRequest() *ProcessRequest {
	return &ProcessRequest{
		JobID:     "job-1",
		UserID:    7,
		Filename:  "attention.pdf",
		PDFBuffer: []byte("%PDF-1.5 fake"),
	}
}

func TestProcessMergesFigureRecords(t *testing.T) {
	tables := &fakeTableExtractor{table: "x | y"}
	p := newTestPipeline(t, &PipelineConfig{
		Figures: &fakeFigureSource{figures: []RawFigure{
			{Base64PNG: "aGk=", Caption: "Figure 2: Accuracy over epochs", Width: 640, Height: 480},
			{Base64PNG: "eW8=", Caption: "Figure 3: System overview", Width: 800, Height: 600},
		}},
		Paragraphs: &fakeParagraphSource{
			paragraphs: []string{
				"As shown in Fig. 2, accuracy improves.",
				"Fig. 3 depicts the architecture.",
				"Figure 2 and Figure 3 are both discussed here.",
			},
			metadata: &clients.PaperMetadata{Title: "Attention Is All You Need"},
		},
		Classifier: &fakeFigureClassifier{labels: []string{"Line plot", "Block diagram"}},
		Detector:   &fakeDetector{detections: []Detection{{Text: "loss", Left: 0, Top: 0, Width: 40, Height: 10}}},
		Tables:     tables,
	})

	result, err := p.Process(context.Background(), testRequest())
	require.NoError(t, err)

	require.Len(t, result.Figures, 2)
	assert.Equal(t, 2, result.FiguresExtracted)
	assert.Equal(t, 1, result.PlotsExtracted)
	assert.Equal(t, "Attention Is All You Need", result.Metadata.Title)

	plot := result.Figures[0]
	assert.Equal(t, "attention-Figure2.png", plot.Filename)
	assert.Equal(t, "Line plot", plot.FigureType)
	assert.Equal(t, "aGk=", plot.Base64Encoded)
	assert.Equal(t, Dimensions{Width: 640, Height: 480}, plot.Dimensions)
	assert.Equal(t,
		"As shown in Fig. 2, accuracy improves.\n\nFigure 2 and Figure 3 are both discussed here.",
		plot.MentionsParagraphs)
	require.NotNil(t, plot.DataTable)
	assert.Equal(t, "x | y", *plot.DataTable)
	assert.NotEmpty(t, plot.OCRText)
	assert.Equal(t, int64(7), plot.UserID)

	diagram := result.Figures[1]
	assert.Equal(t, "attention-Figure3.png", diagram.Filename)
	assert.Equal(t, "Block diagram", diagram.FigureType)
	assert.Nil(t, diagram.DataTable)

	// Only the plot-typed figure reaches the table extractor
	assert.Equal(t, 1, tables.calls)
}

func TestProcessTableExtractorNotCalledForNonPlots(t *testing.T) {
	tables := &fakeTableExtractor{table: "unused"}
	p := newTestPipeline(t, &PipelineConfig{
		Figures:    &fakeFigureSource{figures: []RawFigure{{Caption: "Figure 1: Dataset statistics"}}},
		Paragraphs: &fakeParagraphSource{},
		Classifier: &fakeFigureClassifier{labels: []string{"Tables"}},
		Detector:   &fakeDetector{},
		Tables:     tables,
	})

	result, err := p.Process(context.Background(), testRequest())
	require.NoError(t, err)

	assert.Equal(t, 0, tables.calls)
	assert.Equal(t, 0, result.PlotsExtracted)
	assert.Nil(t, result.Figures[0].DataTable)
}

func TestProcessOCRFailureDegradesToEmptyText(t *testing.T) {
	p := newTestPipeline(t, &PipelineConfig{
		Figures:    &fakeFigureSource{figures: []RawFigure{{Caption: "Figure 1: Results"}}},
		Paragraphs: &fakeParagraphSource{},
		Classifier: &fakeFigureClassifier{labels: []string{"Other"}},
		Detector:   &fakeDetector{err: errors.New("tesseract crashed")},
	})

	result, err := p.Process(context.Background(), testRequest())
	require.NoError(t, err)

	assert.Equal(t, "", result.Figures[0].OCRText)
}

func TestProcessTableExtractionFailureDegradesToNil(t *testing.T) {
	tables := &fakeTableExtractor{err: errors.New("generation failed")}
	p := newTestPipeline(t, &PipelineConfig{
		Figures:    &fakeFigureSource{figures: []RawFigure{{Caption: "Figure 1: Loss curve"}}},
		Paragraphs: &fakeParagraphSource{},
		Classifier: &fakeFigureClassifier{labels: []string{"Line plot"}},
		Detector:   &fakeDetector{},
		Tables:     tables,
	})

	result, err := p.Process(context.Background(), testRequest())
	require.NoError(t, err)

	assert.Nil(t, result.Figures[0].DataTable)
	assert.Equal(t, 0, result.PlotsExtracted)
}

func TestProcessFigureExtractionFailureIsFatal(t *testing.T) {
	p := newTestPipeline(t, &PipelineConfig{
		Figures:    &fakeFigureSource{err: errors.New("jar exploded")},
		Paragraphs: &fakeParagraphSource{},
		Classifier: &fakeFigureClassifier{labels: []string{"Other"}},
	})

	_, err := p.Process(context.Background(), testRequest())
	require.Error(t, err)

	var procErr *procerrors.ProcessingError
	require.ErrorAs(t, err, &procErr)
	assert.Equal(t, procerrors.ErrorFigureExtractionFailed, procErr.Code)
}

func TestProcessTextExtractionFailureIsFatal(t *testing.T) {
	p := newTestPipeline(t, &PipelineConfig{
		Figures:    &fakeFigureSource{figures: []RawFigure{{Caption: "Figure 1"}}},
		Paragraphs: &fakeParagraphSource{err: errors.New("grobid down")},
		Classifier: &fakeFigureClassifier{labels: []string{"Other"}},
	})

	_, err := p.Process(context.Background(), testRequest())
	require.Error(t, err)

	var procErr *procerrors.ProcessingError
	require.ErrorAs(t, err, &procErr)
	assert.Equal(t, procerrors.ErrorTextExtractionFailed, procErr.Code)
}

func TestProcessClassificationFailureIsFatal(t *testing.T) {
	p := newTestPipeline(t, &PipelineConfig{
		Figures:    &fakeFigureSource{figures: []RawFigure{{Caption: "Figure 1"}}},
		Paragraphs: &fakeParagraphSource{},
		Classifier: &fakeFigureClassifier{err: errors.New("backend unreachable")},
	})

	_, err := p.Process(context.Background(), testRequest())
	require.Error(t, err)

	var procErr *procerrors.ProcessingError
	require.ErrorAs(t, err, &procErr)
	assert.Equal(t, procerrors.ErrorClassificationFailed, procErr.Code)
}

func TestProcessRejectsInvalidUploads(t *testing.T) {
	p := newTestPipeline(t, &PipelineConfig{
		Figures:    &fakeFigureSource{},
		Paragraphs: &fakeParagraphSource{},
		Classifier: &fakeFigureClassifier{labels: []string{"Other"}},
	})

	tests := []struct {
		name     string
		filename string
	}{
		{"no filename", ""},
		{"not a pdf", "figure.png"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := testRequest()
			req.Filename = tt.filename

			_, err := p.Process(context.Background(), req)
			require.Error(t, err)

			var procErr *procerrors.ProcessingError
			require.ErrorAs(t, err, &procErr)
			assert.Equal(t, procerrors.ErrorInvalidUpload, procErr.Code)
		})
	}
}

func TestProcessNoCaptionNumberFilename(t *testing.T) {
	p := newTestPipeline(t, &PipelineConfig{
		Figures:    &fakeFigureSource{figures: []RawFigure{{Caption: "An unnumbered diagram"}}},
		Paragraphs: &fakeParagraphSource{paragraphs: []string{"Figure 1 is unrelated."}},
		Classifier: &fakeFigureClassifier{labels: []string{"Other"}},
	})

	result, err := p.Process(context.Background(), testRequest())
	require.NoError(t, err)

	// No figure number: the filename keeps the empty slot and nothing links
	assert.Equal(t, "attention-Figure.png", result.Figures[0].Filename)
	assert.Equal(t, "", result.Figures[0].MentionsParagraphs)
}
