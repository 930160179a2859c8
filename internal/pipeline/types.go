/**
 * Pipeline Types - Shared data structures for figure processing
 *
 * RawFigure is the transient unit of work for one figure inside one PDF;
 * FigureRecord is the merged output handed to the persistence layer.
 */

package pipeline

import (
	"github.com/figstudio/figprocess-worker/internal/clients"
)

// RawFigure is one localized figure straight out of pdffigures2
type RawFigure struct {
	ImagePNG   []byte // re-encoded PNG bytes
	Base64PNG  string // base64 of ImagePNG, as persisted
	Caption    string
	Width      int
	Height     int
	RenderPath string // rendered image on disk, reused by OCR and table extraction
}

// Dimensions of a figure image in pixels
type Dimensions struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// FigureRecord is the merged, persistable representation of one figure
type FigureRecord struct {
	Base64Encoded      string     `json:"base64_encoded"`
	Filename           string     `json:"filename"`
	Dimensions         Dimensions `json:"dimensions"`
	OCRText            string     `json:"ocr_text"`
	FigureType         string     `json:"figure_type"`
	Caption            string     `json:"caption"`
	MentionsParagraphs string     `json:"mentions_paragraphs"`
	DataTable          *string    `json:"data_table"` // nil unless the figure is a plot
	PaperID            int64      `json:"paper_id,omitempty"`
	UserID             int64      `json:"user_id,omitempty"`
	StudySession       bool       `json:"study_session"`
}

// Detection is one OCR-reported text span with its bounding box
type Detection struct {
	Text       string
	Left       int
	Top        int
	Width      int
	Height     int
	Confidence float64
}

// ProcessRequest represents a paper processing request
type ProcessRequest struct {
	JobID     string
	UserID    int64
	PaperID   int64
	Filename  string
	PDFBuffer []byte
	Metadata  map[string]interface{}
}

// ProcessResult represents the processing result for one paper: the pipeline
// entry point's {figures, metadata} contract
type ProcessResult struct {
	Figures          []FigureRecord         `json:"figures"`
	Metadata         *clients.PaperMetadata `json:"metadata"`
	PaperID          int64                  `json:"paperId,omitempty"`
	FiguresExtracted int                    `json:"figuresExtracted"`
	PlotsExtracted   int                    `json:"plotsExtracted"`
	ProcessingTimeMs int64                  `json:"processingTimeMs"`
}
