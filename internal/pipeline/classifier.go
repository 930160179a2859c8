/**
 * Figure Type Classifier
 *
 * Client-side half of the DocFigure-style classifier: the worker resizes and
 * normalizes the figure image into a dense CHW float tensor and sends it to
 * the inference backend, which returns 28 logits. The argmax index selects a
 * label; labels outside the permitted set collapse to "Other".
 *
 * Index 11 is reported as "Line plot" rather than the dataset's original
 * "Graph plots", matching the label set the authors publish.
 */

package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"strings"

	"golang.org/x/image/draw"
)

const (
	classifierInputSize = 384
	classifierNumLabels = 28
)

// labelNames maps the classifier's 28 output indices to figure type labels
var labelNames = [classifierNumLabels]string{
	"3D objects",
	"Algorithm",
	"Area chart",
	"Bar plots",
	"Block diagram",
	"Box plot",
	"Bubble Chart",
	"Confusion matrix",
	"Contour plot",
	"Flow chart",
	"Geographic map",
	"Line plot",
	"Heat map",
	"Histogram",
	"Mask",
	"Medical images",
	"Natural images",
	"Pareto charts",
	"Pie chart",
	"Polar plot",
	"Radar chart",
	"Scatter plot",
	"Sketches",
	"Surface plot",
	"Tables",
	"Tree Diagram",
	"Vector plot",
	"Venn Diagram",
}

// permittedLabelNames is the subset of labels the annotation guidelines cover.
// Anything else is reported as "Other".
var permittedLabelNames = map[string]bool{
	"Area chart":       true,
	"Bar plots":        true,
	"Block diagram":    true,
	"Box plot":         true,
	"Bubble chart":     true,
	"Confusion matrix": true,
	"Flow chart":       true,
	"Line plot":        true,
	"Histogram":        true,
	"Pareto charts":    true,
	"Pie chart":        true,
	"Polar plot":       true,
	"Radar chart":      true,
	"Scatter plot":     true,
	"Sketches":         true,
	"Tree Diagram":     true,
	"Venn Diagram":     true,
}

// ImageNet channel statistics used by the checkpoint's training pipeline
var (
	normMean = [3]float32{0.485, 0.456, 0.406}
	normStd  = [3]float32{0.229, 0.224, 0.225}
)

// InferenceBackend runs one dense forward pass on a named model
type InferenceBackend interface {
	Infer(ctx context.Context, modelName string, input []float32, shape []int64) ([]float32, error)
}

// Classifier assigns a figure type label to a figure image
type Classifier struct {
	backend   InferenceBackend
	modelName string
}

// NewClassifier creates a classifier backed by the given inference backend
func NewClassifier(backend InferenceBackend, modelName string) *Classifier {
	if modelName == "" {
		modelName = "docfigure"
	}
	return &Classifier{
		backend:   backend,
		modelName: modelName,
	}
}

// Classify returns the figure type label for a PNG-encoded figure image
func (c *Classifier) Classify(ctx context.Context, imagePNG []byte) (string, error) {
	img, _, err := image.Decode(bytes.NewReader(imagePNG))
	if err != nil {
		return "", fmt.Errorf("failed to decode figure image: %w", err)
	}

	tensor := PreprocessImage(img)

	logits, err := c.backend.Infer(ctx, c.modelName, tensor, []int64{1, 3, classifierInputSize, classifierInputSize})
	if err != nil {
		return "", fmt.Errorf("classifier inference failed: %w", err)
	}
	if len(logits) < classifierNumLabels {
		return "", fmt.Errorf("classifier returned %d logits, expected %d", len(logits), classifierNumLabels)
	}

	label := labelNames[argmax(logits[:classifierNumLabels])]
	if !permittedLabelNames[label] {
		label = "Other"
	}
	return label, nil
}

// PreprocessImage resizes the image to 384x384 and produces a normalized
// CHW float32 tensor in RGB channel order.
func PreprocessImage(img image.Image) []float32 {
	resized := image.NewRGBA(image.Rect(0, 0, classifierInputSize, classifierInputSize))
	draw.CatmullRom.Scale(resized, resized.Bounds(), img, img.Bounds(), draw.Src, nil)

	planeSize := classifierInputSize * classifierInputSize
	tensor := make([]float32, 3*planeSize)

	for y := 0; y < classifierInputSize; y++ {
		for x := 0; x < classifierInputSize; x++ {
			offset := resized.PixOffset(x, y)
			idx := y*classifierInputSize + x
			for ch := 0; ch < 3; ch++ {
				v := float32(resized.Pix[offset+ch]) / 255.0
				tensor[ch*planeSize+idx] = (v - normMean[ch]) / normStd[ch]
			}
		}
	}

	return tensor
}

// IsPlot reports whether a figure type label describes a data plot that the
// table extractor can handle. Flow charts are excluded despite containing
// "chart".
func IsPlot(figureType string) bool {
	if figureType == "Flow Chart" {
		return false
	}
	lower := strings.ToLower(figureType)
	return strings.Contains(lower, "chart") ||
		strings.Contains(lower, "plot") ||
		strings.Contains(lower, "histogram")
}

func argmax(values []float32) int {
	best := 0
	for i, v := range values {
		if v > values[best] {
			best = i
		}
	}
	return best
}
