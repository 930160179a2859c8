/**
 * Figure Localizer - pdffigures2 integration
 *
 * Invokes the pdffigures2 JAR as a subprocess to render per-figure crops of a
 * PDF, then reads back the JSON metadata it writes. Only entries tagged
 * "Figure" are kept; tables and other tagged regions are discarded here
 * because the downstream stages are figure-specific.
 *
 * Failure of the tool (non-zero exit, timeout, missing/garbled metadata) is a
 * hard failure for the whole PDF: there is no meaningful partial figure list.
 */

package pipeline

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"image"
	_ "image/jpeg"
	"image/png"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// FigureExtractor runs pdffigures2 and decodes its output
type FigureExtractor struct {
	jarPath    string
	javaPath   string
	resolution int
	timeout    time.Duration
}

// FigureExtractorConfig holds extractor configuration
type FigureExtractorConfig struct {
	JarPath    string
	JavaPath   string // defaults to "java" on PATH
	Resolution int    // render DPI, defaults to 300
	Timeout    time.Duration
}

// figureMetadata mirrors one entry of the pdffigures2 metadata JSON
type figureMetadata struct {
	FigType   string `json:"figType"`
	RenderURL string `json:"renderURL"`
	Caption   string `json:"caption"`
	Name      string `json:"name"`
	Page      int    `json:"page"`
}

// NewFigureExtractor creates a new figure extractor
func NewFigureExtractor(cfg *FigureExtractorConfig) (*FigureExtractor, error) {
	if cfg.JarPath == "" {
		return nil, fmt.Errorf("pdffigures2 jar path is required")
	}

	javaPath := cfg.JavaPath
	if javaPath == "" {
		javaPath = "java"
	}

	resolution := cfg.Resolution
	if resolution <= 0 {
		resolution = 300
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 20 * time.Second
	}

	return &FigureExtractor{
		jarPath:    cfg.JarPath,
		javaPath:   javaPath,
		resolution: resolution,
		timeout:    timeout,
	}, nil
}

// Extract runs pdffigures2 on pdfPath, writing renders and metadata under
// outputDir, and returns the decoded figures.
func (e *FigureExtractor) Extract(ctx context.Context, pdfPath string, outputDir string) ([]RawFigure, error) {
	dataDir := filepath.Join(outputDir, "data")
	figureDir := filepath.Join(outputDir, "figures")

	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data dir: %w", err)
	}
	if err := os.MkdirAll(figureDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create figure dir: %w", err)
	}

	absDataDir, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data dir: %w", err)
	}
	absFigureDir, err := filepath.Abs(figureDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve figure dir: %w", err)
	}

	// pdffigures2 treats -d/-m values as filename prefixes, so both must end
	// with a path separator to land inside the directories.
	runCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	cmd := exec.CommandContext(
		runCtx,
		e.javaPath,
		"-jar", e.jarPath,
		pdfPath,
		"-i", strconv.Itoa(e.resolution),
		"-d", absDataDir+string(os.PathSeparator),
		"-m", absFigureDir+string(os.PathSeparator),
	)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	log.Printf("Running pdffigures2: pdf=%s resolution=%d timeout=%v", filepath.Base(pdfPath), e.resolution, e.timeout)

	if err := cmd.Run(); err != nil {
		if runCtx.Err() == context.DeadlineExceeded {
			return nil, fmt.Errorf("pdffigures2 timed out after %v", e.timeout)
		}
		return nil, fmt.Errorf("pdffigures2 failed: %w (stderr: %s)", err, truncate(stderr.String(), 300))
	}

	metadataPath := MetadataPath(absDataDir, pdfPath)
	return LoadFigures(metadataPath)
}

// MetadataPath returns the metadata JSON path pdffigures2 writes for a PDF:
// <dataDir>/<pdf basename without extension>.json
func MetadataPath(dataDir string, pdfPath string) string {
	base := filepath.Base(pdfPath)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	return filepath.Join(dataDir, base+".json")
}

// LoadFigures reads a pdffigures2 metadata file and decodes each "Figure"
// entry's render into a RawFigure.
func LoadFigures(metadataPath string) ([]RawFigure, error) {
	raw, err := os.ReadFile(metadataPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read pdffigures2 metadata: %w", err)
	}

	var entries []figureMetadata
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("malformed pdffigures2 metadata: %w", err)
	}

	var figures []RawFigure
	for _, entry := range entries {
		if entry.FigType != "Figure" {
			continue
		}

		figure, err := decodeRender(entry)
		if err != nil {
			return nil, err
		}
		figures = append(figures, figure)
	}

	log.Printf("pdffigures2 metadata loaded: entries=%d figures=%d", len(entries), len(figures))

	return figures, nil
}

// decodeRender loads one rendered figure crop and re-encodes it as PNG
func decodeRender(entry figureMetadata) (RawFigure, error) {
	f, err := os.Open(entry.RenderURL)
	if err != nil {
		return RawFigure{}, fmt.Errorf("failed to open rendered figure %s: %w", entry.RenderURL, err)
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return RawFigure{}, fmt.Errorf("failed to decode rendered figure %s: %w", entry.RenderURL, err)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return RawFigure{}, fmt.Errorf("failed to re-encode figure as PNG: %w", err)
	}

	bounds := img.Bounds()

	return RawFigure{
		ImagePNG:   buf.Bytes(),
		Base64PNG:  base64.StdEncoding.EncodeToString(buf.Bytes()),
		Caption:    entry.Caption,
		Width:      bounds.Dx(),
		Height:     bounds.Dy(),
		RenderPath: entry.RenderURL,
	}, nil
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
