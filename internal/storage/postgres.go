/**
 * PostgreSQL Store for the Figure Processing Worker
 *
 * Persists processed papers and figures, plus the annotation entities the
 * front end reads and writes (descriptions, settings, suggestions, events,
 * generated descriptions).
 */

package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/figstudio/figprocess-worker/internal/pipeline"
)

// Store handles all database operations
type Store struct {
	db *sql.DB
}

// NewStore connects to PostgreSQL and configures the connection pool
func NewStore(databaseURL string) (*Store, error) {
	if databaseURL == "" {
		return nil, fmt.Errorf("database URL is required")
	}

	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)
	db.SetConnMaxIdleTime(2 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Store{db: db}, nil
}

// Close releases the connection pool
func (s *Store) Close() error {
	return s.db.Close()
}

// SaveProcessResult persists one pipeline run atomically: the paper row (new
// or re-processed), all its figure rows, and a processing event. Returns the
// paper's database ID.
func (s *Store) SaveProcessResult(ctx context.Context, userID, paperID int64, filename string, pdf []byte, result *pipeline.ProcessResult) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	title := ""
	authors := ""
	if result.Metadata != nil {
		title = result.Metadata.Title
		authors = joinAuthors(result.Metadata.Authors)
	}

	if paperID == 0 {
		err = tx.QueryRowContext(ctx,
			`INSERT INTO paper (pdf_file, filename, title, authors, user_id)
			 VALUES ($1, $2, $3, $4, $5) RETURNING id`,
			pdf, filename, title, authors, userID,
		).Scan(&paperID)
		if err != nil {
			return 0, fmt.Errorf("failed to insert paper: %w", err)
		}
	} else {
		// Re-processing overwrites the paper and replaces its figures
		if _, err := tx.ExecContext(ctx,
			`UPDATE paper SET pdf_file = $1, filename = $2, title = $3, authors = $4, user_id = $5 WHERE id = $6`,
			pdf, filename, title, authors, userID, paperID,
		); err != nil {
			return 0, fmt.Errorf("failed to update paper: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM figure WHERE paper_id = $1`, paperID); err != nil {
			return 0, fmt.Errorf("failed to clear previous figures: %w", err)
		}
	}

	for _, fig := range result.Figures {
		dims, err := json.Marshal(fig.Dimensions)
		if err != nil {
			return 0, fmt.Errorf("failed to marshal figure dimensions: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO figure
			 (base64_encoded, filename, dimensions, ocr_text, figure_type, caption,
			  mentions_paragraphs, data_table, user_id, paper_id)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
			fig.Base64Encoded, fig.Filename, string(dims), fig.OCRText, fig.FigureType,
			fig.Caption, fig.MentionsParagraphs, fig.DataTable, userID, paperID,
		); err != nil {
			return 0, fmt.Errorf("failed to insert figure %q: %w", fig.Filename, err)
		}
	}

	eventData, _ := json.Marshal(map[string]interface{}{
		"paper_id":          paperID,
		"figures_extracted": result.FiguresExtracted,
		"plots_extracted":   result.PlotsExtracted,
		"processing_ms":     result.ProcessingTimeMs,
	})
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO event (user_id, event_type, event_data) VALUES ($1, $2, $3)`,
		userID, "paper_processed", eventData,
	); err != nil {
		return 0, fmt.Errorf("failed to log processing event: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit process result: %w", err)
	}

	return paperID, nil
}

func joinAuthors(authors []string) string {
	out := ""
	for i, a := range authors {
		if i > 0 {
			out += ", "
		}
		out += a
	}
	return out
}
