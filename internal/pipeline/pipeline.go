/**
 * Paper Pipeline - end-to-end figure processing for one PDF
 *
 * Stages:
 *   1. Figure localization (pdffigures2)   - hard failure for the PDF
 *   2. Paragraph extraction (GROBID)       - hard failure for the PDF
 *   3. Per figure: classification          - hard failure for the PDF
 *                  mention linking
 *                  layout-preserving OCR   - soft failure, empty text
 *                  plot-to-table (plots)   - soft failure, null table
 *
 * OCR and table extraction degrade per figure because a partially annotated
 * figure is still useful to the front end; a PDF without figures or
 * paragraphs is not.
 */

package pipeline

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/figstudio/figprocess-worker/internal/clients"
	procerrors "github.com/figstudio/figprocess-worker/internal/errors"
)

// FigureSource localizes figures and captions in a PDF
type FigureSource interface {
	Extract(ctx context.Context, pdfPath string, outputDir string) ([]RawFigure, error)
}

// ParagraphSource extracts ordered body paragraphs and paper metadata
type ParagraphSource interface {
	ParseParagraphs(ctx context.Context, pdfPath string) ([]string, *clients.PaperMetadata, error)
}

// FigureClassifier assigns a figure type label to a figure image
type FigureClassifier interface {
	Classify(ctx context.Context, imagePNG []byte) (string, error)
}

// PaperPipeline orchestrates all processing stages for one PDF
type PaperPipeline struct {
	figures    FigureSource
	paragraphs ParagraphSource
	classifier FigureClassifier
	detector   Detector
	tables     TableExtractor
	workDir    string
	gridMaxDim int
}

// PipelineConfig wires the pipeline's stage implementations
type PipelineConfig struct {
	Figures    FigureSource
	Paragraphs ParagraphSource
	Classifier FigureClassifier
	Detector   Detector
	Tables     TableExtractor
	WorkDir    string
	GridMaxDim int // longer grid side in characters, defaults to 100
}

// NewPaperPipeline creates a pipeline from its stage implementations
func NewPaperPipeline(cfg *PipelineConfig) *PaperPipeline {
	gridMaxDim := cfg.GridMaxDim
	if gridMaxDim <= 0 {
		gridMaxDim = 100
	}
	workDir := cfg.WorkDir
	if workDir == "" {
		workDir = os.TempDir()
	}
	return &PaperPipeline{
		figures:    cfg.Figures,
		paragraphs: cfg.Paragraphs,
		classifier: cfg.Classifier,
		detector:   cfg.Detector,
		tables:     cfg.Tables,
		workDir:    workDir,
		gridMaxDim: gridMaxDim,
	}
}

// Process runs the full pipeline over one uploaded PDF
func (p *PaperPipeline) Process(ctx context.Context, req *ProcessRequest) (*ProcessResult, error) {
	startTime := time.Now()

	if req.Filename == "" {
		return nil, procerrors.NewInvalidUploadError(req.JobID, "No file was uploaded.")
	}
	if !strings.HasSuffix(req.Filename, ".pdf") {
		return nil, procerrors.NewInvalidUploadError(req.JobID, "File must be a PDF.")
	}

	jobDir := filepath.Join(p.workDir, req.JobID)
	if err := os.MkdirAll(jobDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create job dir: %w", err)
	}
	defer os.RemoveAll(jobDir)

	pdfPath := filepath.Join(jobDir, filepath.Base(req.Filename))
	if err := os.WriteFile(pdfPath, req.PDFBuffer, 0644); err != nil {
		return nil, fmt.Errorf("failed to write PDF to work dir: %w", err)
	}

	log.Printf("[Job %s] Starting paper processing: %s (%d bytes)", req.JobID, req.Filename, len(req.PDFBuffer))

	rawFigures, err := p.figures.Extract(ctx, pdfPath, jobDir)
	if err != nil {
		return nil, procerrors.NewFigureExtractionError(req.JobID, err)
	}
	log.Printf("[Job %s] Figure extraction complete: %d figures", req.JobID, len(rawFigures))

	paragraphs, metadata, err := p.paragraphs.ParseParagraphs(ctx, pdfPath)
	if err != nil {
		return nil, procerrors.NewTextExtractionError(req.JobID, err)
	}
	log.Printf("[Job %s] Text extraction complete: %d paragraphs", req.JobID, len(paragraphs))

	pdfBase := strings.TrimSuffix(filepath.Base(req.Filename), filepath.Ext(req.Filename))

	records := make([]FigureRecord, 0, len(rawFigures))
	plotsExtracted := 0
	for i, raw := range rawFigures {
		record, isPlotFigure, err := p.processFigure(ctx, req, i, raw, paragraphs, pdfBase)
		if err != nil {
			return nil, err
		}
		if isPlotFigure {
			plotsExtracted++
		}
		records = append(records, record)
	}

	elapsed := time.Since(startTime)
	log.Printf("[Job %s] Processing complete: figures=%d plots=%d elapsed=%v",
		req.JobID, len(records), plotsExtracted, elapsed)

	return &ProcessResult{
		Figures:          records,
		Metadata:         metadata,
		PaperID:          req.PaperID,
		FiguresExtracted: len(records),
		PlotsExtracted:   plotsExtracted,
		ProcessingTimeMs: elapsed.Milliseconds(),
	}, nil
}

// processFigure runs the per-figure stages and merges their outputs
func (p *PaperPipeline) processFigure(
	ctx context.Context,
	req *ProcessRequest,
	index int,
	raw RawFigure,
	paragraphs []string,
	pdfBase string,
) (FigureRecord, bool, error) {
	figureType, err := p.classifier.Classify(ctx, raw.ImagePNG)
	if err != nil {
		return FigureRecord{}, false, procerrors.NewClassificationError(req.JobID, index, err)
	}

	figureNum, mentions := FindMentions(raw.Caption, paragraphs)

	record := FigureRecord{
		Base64Encoded:      raw.Base64PNG,
		Filename:           fmt.Sprintf("%s-Figure%s.png", pdfBase, figureNum),
		Dimensions:         Dimensions{Width: raw.Width, Height: raw.Height},
		FigureType:         figureType,
		Caption:            raw.Caption,
		MentionsParagraphs: strings.Join(mentions, "\n\n"),
		PaperID:            req.PaperID,
		UserID:             req.UserID,
	}

	record.OCRText = p.runOCR(ctx, req.JobID, index, raw)

	isPlotFigure := IsPlot(figureType)
	if isPlotFigure && p.tables != nil {
		table, err := p.tables.ExtractTable(ctx, raw.ImagePNG)
		if err != nil {
			// Soft failure: a figure without a data table is still usable
			log.Printf("[Job %s] %v", req.JobID, procerrors.NewTableExtractionError(req.JobID, index, err))
			isPlotFigure = false
		} else {
			record.DataTable = &table
		}
	}

	return record, isPlotFigure, nil
}

// runOCR detects words and renders the layout grid. Any OCR failure degrades
// to empty text.
func (p *PaperPipeline) runOCR(ctx context.Context, jobID string, index int, raw RawFigure) string {
	if p.detector == nil {
		return ""
	}

	detections, err := p.detector.DetectWords(ctx, raw.RenderPath)
	if err != nil {
		log.Printf("[Job %s] %v", jobID, procerrors.NewOCRFailedError(jobID, index, err))
		return ""
	}

	return RenderGrid(detections, raw.Width, raw.Height, p.gridMaxDim)
}
