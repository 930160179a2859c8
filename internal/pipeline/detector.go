/**
 * OCR Word Detector - Tesseract integration
 *
 * Wraps gosseract behind a small interface so the grid renderer and the
 * pipeline can be tested with canned detections. Each Tesseract call uses a
 * fresh client: gosseract clients are not safe for concurrent use and the
 * worker processes figures from multiple jobs in parallel.
 */

package pipeline

import (
	"context"
	"fmt"

	"github.com/otiai10/gosseract/v2"
)

// Detector finds text spans with bounding boxes in a figure image
type Detector interface {
	DetectWords(ctx context.Context, imagePath string) ([]Detection, error)
}

// TesseractDetector runs word-level OCR through gosseract
type TesseractDetector struct {
	languages []string
}

// NewTesseractDetector creates a detector for the given Tesseract languages.
// With no languages it defaults to English.
func NewTesseractDetector(languages []string) *TesseractDetector {
	if len(languages) == 0 {
		languages = []string{"eng"}
	}
	return &TesseractDetector{languages: languages}
}

// DetectWords returns word-level detections for the image at imagePath
func (d *TesseractDetector) DetectWords(ctx context.Context, imagePath string) ([]Detection, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	client := gosseract.NewClient()
	defer client.Close()

	if err := client.SetLanguage(d.languages...); err != nil {
		return nil, fmt.Errorf("failed to set OCR languages: %w", err)
	}
	if err := client.SetImage(imagePath); err != nil {
		return nil, fmt.Errorf("failed to load image for OCR: %w", err)
	}

	boxes, err := client.GetBoundingBoxes(gosseract.RIL_WORD)
	if err != nil {
		return nil, fmt.Errorf("OCR word detection failed: %w", err)
	}

	detections := make([]Detection, 0, len(boxes))
	for _, box := range boxes {
		if box.Word == "" {
			continue
		}
		detections = append(detections, Detection{
			Text:       box.Word,
			Left:       box.Box.Min.X,
			Top:        box.Box.Min.Y,
			Width:      box.Box.Dx(),
			Height:     box.Box.Dy(),
			Confidence: box.Confidence,
		})
	}

	return detections, nil
}
