/**
 * OCR Layout Grid
 *
 * Projects OCR word detections onto a coarse character grid so the output
 * string preserves the spatial layout of text in the figure (axis labels stay
 * under their axes, legend entries stay grouped). The grid's longer side is
 * capped at gridMaxDim characters and the image's aspect ratio is kept.
 */

package pipeline

import (
	"strings"
)

// RenderGrid places detections on a character grid sized from the image
// dimensions and returns the grid as a newline-joined string.
//
// Horizontal positions are normalized against the rightmost detection edge,
// vertical positions against the bottommost one, so the text block fills the
// grid regardless of image margins. Words are truncated at the right edge and
// later detections overwrite earlier ones on collision. Rows are
// right-trimmed and fully blank leading/trailing rows are dropped.
func RenderGrid(detections []Detection, imgWidth, imgHeight, gridMaxDim int) string {
	if len(detections) == 0 {
		return ""
	}

	maxDim := imgWidth
	if imgHeight > maxDim {
		maxDim = imgHeight
	}
	if maxDim <= 0 || gridMaxDim <= 0 {
		return ""
	}

	ratio := float64(maxDim) / float64(gridMaxDim)
	rows := int(float64(imgHeight) / ratio)
	cols := int(float64(imgWidth) / ratio)
	if rows <= 0 || cols <= 0 {
		return ""
	}

	maxRight := 0
	maxBottom := 0
	for _, d := range detections {
		if right := d.Left + d.Width; right > maxRight {
			maxRight = right
		}
		if bottom := d.Top + d.Height; bottom > maxBottom {
			maxBottom = bottom
		}
	}
	if maxRight <= 0 || maxBottom <= 0 {
		return ""
	}

	grid := make([][]rune, rows)
	for i := range grid {
		grid[i] = make([]rune, cols)
		for j := range grid[i] {
			grid[i][j] = ' '
		}
	}

	for _, d := range detections {
		left := int(float64(d.Left) / float64(maxRight) * float64(cols-1))
		top := int(float64(d.Top) / float64(maxBottom) * float64(rows-1))
		if left < 0 || left >= cols || top < 0 || top >= rows {
			continue
		}

		word := []rune(d.Text)
		if len(word) > cols-left {
			word = word[:cols-left]
		}
		copy(grid[top][left:], word)
	}

	lines := make([]string, rows)
	for i, row := range grid {
		lines[i] = strings.TrimRight(string(row), " ")
	}

	// Drop fully blank rows at both ends
	start, end := 0, len(lines)
	for start < end && strings.TrimSpace(lines[start]) == "" {
		start++
	}
	for end > start && strings.TrimSpace(lines[end-1]) == "" {
		end--
	}

	return strings.Join(lines[start:end], "\n")
}
