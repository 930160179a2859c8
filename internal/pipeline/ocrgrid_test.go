package pipeline

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRenderGridPlacesWordsByScaledPosition(t *testing.T) {
	// 100x50 image, grid capped at 10 -> 10 columns x 5 rows
	detections := []Detection{
		{Text: "Hi", Left: 0, Top: 0, Width: 20, Height: 10},
		{Text: "yo", Left: 80, Top: 40, Width: 20, Height: 10},
	}

	got := RenderGrid(detections, 100, 50, 10)

	// "yo" lands at column 80/100*9 = 7, row 40/50*4 = 3; the trailing blank
	// row is trimmed.
	assert.Equal(t, "Hi\n\n\n       yo", got)
}

func TestRenderGridZeroDetections(t *testing.T) {
	assert.Equal(t, "", RenderGrid(nil, 100, 50, 10))
	assert.Equal(t, "", RenderGrid([]Detection{}, 100, 50, 10))
}

func TestRenderGridTruncatesAtRightEdge(t *testing.T) {
	detections := []Detection{
		{Text: "overflowing", Left: 80, Top: 0, Width: 20, Height: 10},
	}

	got := RenderGrid(detections, 100, 50, 10)

	// Word starts at column 7 of 10; only 3 characters fit
	assert.Equal(t, "       ove", got)
}

func TestRenderGridOverlapLastWriteWins(t *testing.T) {
	detections := []Detection{
		{Text: "first", Left: 0, Top: 0, Width: 50, Height: 10},
		{Text: "SECOND", Left: 0, Top: 0, Width: 50, Height: 10},
	}

	got := RenderGrid(detections, 100, 50, 10)

	assert.True(t, strings.HasPrefix(got, "SECOND"), "later detection must overwrite earlier one, got %q", got)
	assert.NotContains(t, got, "first")
}

func TestRenderGridTrimsBlankEdgeRows(t *testing.T) {
	// Single word in the vertical middle: no leading or trailing blank lines
	detections := []Detection{
		{Text: "mid", Left: 0, Top: 25, Width: 30, Height: 10},
		{Text: "end", Left: 0, Top: 40, Width: 30, Height: 10},
	}

	got := RenderGrid(detections, 100, 50, 10)

	lines := strings.Split(got, "\n")
	assert.NotEqual(t, "", strings.TrimSpace(lines[0]))
	assert.NotEqual(t, "", strings.TrimSpace(lines[len(lines)-1]))
}

func TestRenderGridRightTrimsRows(t *testing.T) {
	detections := []Detection{
		{Text: "left", Left: 0, Top: 0, Width: 10, Height: 10},
	}

	got := RenderGrid(detections, 100, 50, 10)

	for _, line := range strings.Split(got, "\n") {
		assert.Equal(t, strings.TrimRight(line, " "), line)
	}
}

func TestRenderGridNormalizesAgainstDetectionExtent(t *testing.T) {
	// The rightmost detection edge maps to the last column regardless of
	// image margins.
	detections := []Detection{
		{Text: "a", Left: 0, Top: 0, Width: 5, Height: 5},
		{Text: "b", Left: 45, Top: 0, Width: 5, Height: 5},
	}

	got := RenderGrid(detections, 100, 50, 10)

	// maxRight = 50, so "b" is placed at 45/50*9 = 8
	assert.Equal(t, "a       b", got)
}

func TestRenderGridDeterministic(t *testing.T) {
	detections := []Detection{
		{Text: "axis", Left: 10, Top: 5, Width: 30, Height: 8},
		{Text: "label", Left: 60, Top: 35, Width: 35, Height: 8},
	}

	first := RenderGrid(detections, 100, 50, 20)
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, RenderGrid(detections, 100, 50, 20))
	}
}

func TestRenderGridDegenerateGeometry(t *testing.T) {
	d := []Detection{{Text: "x", Left: 0, Top: 0, Width: 1, Height: 1}}

	assert.Equal(t, "", RenderGrid(d, 0, 0, 10))
	assert.Equal(t, "", RenderGrid(d, 100, 50, 0))
	// Extremely wide image: zero rows
	assert.Equal(t, "", RenderGrid(d, 10000, 10, 10))
}
