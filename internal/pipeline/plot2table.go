/**
 * Plot-to-Table Extractor
 *
 * Recovers the underlying data table of a plot image through a
 * vision-to-sequence model on the model server. Two backends are registered:
 *
 * - unichart: Donut-style decoding seeded with "<extract_data_table> <s_answer>";
 *   the answer is whatever follows the <s_answer> marker after special tokens
 *   are stripped.
 * - deplot:   Pix2Struct-style prompting; the model emits linearized tables
 *   with <0x0A> as the line separator.
 *
 * The backend is selected once at startup by model name.
 */

package pipeline

import (
	"context"
	"encoding/base64"
	"fmt"
	"sort"
	"strings"

	"github.com/figstudio/figprocess-worker/internal/clients"
)

const dataTablePrompt = "<extract_data_table>"

// VisionSeqModel generates text from an image and a prompt
type VisionSeqModel interface {
	Generate(ctx context.Context, modelName string, req *clients.GenerateRequest) (string, error)
}

// TableExtractor turns a plot image into a textual data table
type TableExtractor interface {
	ExtractTable(ctx context.Context, imagePNG []byte) (string, error)
}

// tableExtractorFactory builds an extractor over a generation backend
type tableExtractorFactory func(model VisionSeqModel) TableExtractor

// tableExtractors is the registry of supported plot-to-table backends.
// Add new models here.
var tableExtractors = map[string]tableExtractorFactory{
	"unichart": newUniChartExtractor,
	"deplot":   newDeplotExtractor,
}

// NewTableExtractor returns the extractor registered under modelName
func NewTableExtractor(modelName string, model VisionSeqModel) (TableExtractor, error) {
	factory, ok := tableExtractors[strings.ToLower(modelName)]
	if !ok {
		return nil, fmt.Errorf("unknown plot-to-table model %q (supported: %s)", modelName, strings.Join(supportedTableModels(), ", "))
	}
	return factory(model), nil
}

func supportedTableModels() []string {
	names := make([]string, 0, len(tableExtractors))
	for name := range tableExtractors {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// uniChartExtractor decodes data tables with a UniChart checkpoint
type uniChartExtractor struct {
	model VisionSeqModel
}

func newUniChartExtractor(model VisionSeqModel) TableExtractor {
	return &uniChartExtractor{model: model}
}

func (e *uniChartExtractor) ExtractTable(ctx context.Context, imagePNG []byte) (string, error) {
	raw, err := e.model.Generate(ctx, "unichart", &clients.GenerateRequest{
		Image:         base64.StdEncoding.EncodeToString(imagePNG),
		Prompt:        dataTablePrompt,
		DecoderInput:  dataTablePrompt + " <s_answer>",
		MaxTokens:     512,
		NumBeams:      4,
		EarlyStopping: true,
		BanUnknown:    true,
	})
	if err != nil {
		return "", fmt.Errorf("unichart generation failed: %w", err)
	}

	// Strip Donut special tokens, then isolate the answer segment
	raw = strings.ReplaceAll(raw, "</s>", "")
	raw = strings.ReplaceAll(raw, "<pad>", "")
	if idx := strings.Index(raw, "<s_answer>"); idx >= 0 {
		raw = raw[idx+len("<s_answer>"):]
	}

	return strings.TrimSpace(raw), nil
}

// deplotExtractor decodes data tables with a DePlot (Pix2Struct) checkpoint
type deplotExtractor struct {
	model VisionSeqModel
}

func newDeplotExtractor(model VisionSeqModel) TableExtractor {
	return &deplotExtractor{model: model}
}

func (e *deplotExtractor) ExtractTable(ctx context.Context, imagePNG []byte) (string, error) {
	raw, err := e.model.Generate(ctx, "deplot", &clients.GenerateRequest{
		Image:     base64.StdEncoding.EncodeToString(imagePNG),
		Prompt:    dataTablePrompt,
		MaxTokens: 1024,
	})
	if err != nil {
		return "", fmt.Errorf("deplot generation failed: %w", err)
	}

	return strings.ReplaceAll(raw, "<0x0A>", "\n"), nil
}
