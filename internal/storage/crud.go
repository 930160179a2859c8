/**
 * Entity CRUD operations
 *
 * Conventions shared by all entities:
 * - Upserts match an existing row by ID first (entity-specific fallbacks
 *   follow, e.g. users by g_id or username, descriptions by figure_id) and
 *   create the row when nothing matches.
 * - List queries are keyed by the owning parent (user, paper, figure,
 *   description) and return rows in ID order.
 * - Events are append-only; they are never updated.
 */

package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
)

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = sql.ErrNoRows

// =========================================
// Users
// =========================================

// UpsertUser creates or updates a user. An existing user is matched by ID,
// then g_id, then username; creation requires at least one of g_id/username.
func (s *Store) UpsertUser(ctx context.Context, u *User) (*User, error) {
	var existingID int64
	err := s.db.QueryRowContext(ctx,
		`SELECT id FROM users WHERE id = $1 OR (g_id <> '' AND g_id = $2) OR (username <> '' AND username = $3) LIMIT 1`,
		u.ID, u.GID, u.Username,
	).Scan(&existingID)

	if err == sql.ErrNoRows {
		if u.GID == "" && u.Username == "" {
			return nil, fmt.Errorf("must provide either g_id or username")
		}
		err = s.db.QueryRowContext(ctx,
			`INSERT INTO users (username, g_id) VALUES ($1, $2) RETURNING id, date_first_interacted`,
			u.Username, u.GID,
		).Scan(&u.ID, &u.DateFirstInteracted)
		if err != nil {
			return nil, fmt.Errorf("failed to insert user: %w", err)
		}
		return u, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up user: %w", err)
	}

	u.ID = existingID
	if _, err := s.db.ExecContext(ctx,
		`UPDATE users SET username = COALESCE(NULLIF($1, ''), username), g_id = COALESCE(NULLIF($2, ''), g_id) WHERE id = $3`,
		u.Username, u.GID, u.ID,
	); err != nil {
		return nil, fmt.Errorf("failed to update user: %w", err)
	}
	return s.GetUser(ctx, u.ID)
}

// GetUser fetches one user by ID
func (s *Store) GetUser(ctx context.Context, id int64) (*User, error) {
	var u User
	var username, gid sql.NullString
	var activeDesc sql.NullInt64
	err := s.db.QueryRowContext(ctx,
		`SELECT id, username, g_id, date_first_interacted, active_description_id FROM users WHERE id = $1`,
		id,
	).Scan(&u.ID, &username, &gid, &u.DateFirstInteracted, &activeDesc)
	if err != nil {
		return nil, err
	}
	u.Username = username.String
	u.GID = gid.String
	if activeDesc.Valid {
		u.ActiveDescriptionID = &activeDesc.Int64
	}
	return &u, nil
}

// GetUserByGoogleID fetches one user by Google account ID
func (s *Store) GetUserByGoogleID(ctx context.Context, gid string) (*User, error) {
	var id int64
	err := s.db.QueryRowContext(ctx, `SELECT id FROM users WHERE g_id = $1`, gid).Scan(&id)
	if err != nil {
		return nil, err
	}
	return s.GetUser(ctx, id)
}

// DeleteUser removes a user by ID
func (s *Store) DeleteUser(ctx context.Context, id int64) error {
	return s.deleteByID(ctx, "users", id)
}

// =========================================
// Papers
// =========================================

// UpsertPaper creates or updates a paper, matched by ID
func (s *Store) UpsertPaper(ctx context.Context, p *Paper) (*Paper, error) {
	if p.ID != 0 {
		res, err := s.db.ExecContext(ctx,
			`UPDATE paper SET pdf_file = $1, filename = $2, title = $3, authors = $4, user_id = $5 WHERE id = $6`,
			p.PDFFile, p.Filename, p.Title, p.Authors, p.UserID, p.ID,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to update paper: %w", err)
		}
		if n, _ := res.RowsAffected(); n > 0 {
			return s.GetPaper(ctx, p.ID)
		}
	}

	err := s.db.QueryRowContext(ctx,
		`INSERT INTO paper (pdf_file, filename, title, authors, user_id)
		 VALUES ($1, $2, $3, $4, $5) RETURNING id, date_uploaded`,
		p.PDFFile, p.Filename, p.Title, p.Authors, p.UserID,
	).Scan(&p.ID, &p.DateUploaded)
	if err != nil {
		return nil, fmt.Errorf("failed to insert paper: %w", err)
	}
	return p, nil
}

// GetPaper fetches one paper by ID
func (s *Store) GetPaper(ctx context.Context, id int64) (*Paper, error) {
	var p Paper
	var title, authors sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT id, pdf_file, filename, title, authors, date_uploaded, user_id FROM paper WHERE id = $1`,
		id,
	).Scan(&p.ID, &p.PDFFile, &p.Filename, &title, &authors, &p.DateUploaded, &p.UserID)
	if err != nil {
		return nil, err
	}
	p.Title = title.String
	p.Authors = authors.String
	return &p, nil
}

// ListPapersByUser returns all papers owned by a user
func (s *Store) ListPapersByUser(ctx context.Context, userID int64) ([]Paper, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, pdf_file, filename, title, authors, date_uploaded, user_id FROM paper WHERE user_id = $1 ORDER BY id`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list papers: %w", err)
	}
	defer rows.Close()

	var papers []Paper
	for rows.Next() {
		var p Paper
		var title, authors sql.NullString
		if err := rows.Scan(&p.ID, &p.PDFFile, &p.Filename, &title, &authors, &p.DateUploaded, &p.UserID); err != nil {
			return nil, err
		}
		p.Title = title.String
		p.Authors = authors.String
		papers = append(papers, p)
	}
	return papers, rows.Err()
}

// DeletePaper removes a paper by ID
func (s *Store) DeletePaper(ctx context.Context, id int64) error {
	return s.deleteByID(ctx, "paper", id)
}

// =========================================
// Figures
// =========================================

// UpsertFigure creates or updates a figure, matched by ID
func (s *Store) UpsertFigure(ctx context.Context, f *Figure) (*Figure, error) {
	if f.Condition == "" {
		f.Condition = "full"
	}

	if f.ID != 0 {
		res, err := s.db.ExecContext(ctx,
			`UPDATE figure SET base64_encoded = $1, filename = $2, dimensions = $3, ocr_text = $4,
			 figure_type = $5, caption = $6, mentions_paragraphs = $7, data_table = $8,
			 study_session = $9, condition = $10, user_id = $11, paper_id = $12 WHERE id = $13`,
			f.Base64Encoded, f.Filename, f.Dimensions, f.OCRText, f.FigureType, f.Caption,
			f.MentionsParagraphs, f.DataTable, f.StudySession, f.Condition, f.UserID, f.PaperID, f.ID,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to update figure: %w", err)
		}
		if n, _ := res.RowsAffected(); n > 0 {
			return s.GetFigure(ctx, f.ID)
		}
	}

	err := s.db.QueryRowContext(ctx,
		`INSERT INTO figure
		 (base64_encoded, filename, dimensions, ocr_text, figure_type, caption,
		  mentions_paragraphs, data_table, study_session, condition, user_id, paper_id)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12) RETURNING id`,
		f.Base64Encoded, f.Filename, f.Dimensions, f.OCRText, f.FigureType, f.Caption,
		f.MentionsParagraphs, f.DataTable, f.StudySession, f.Condition, f.UserID, f.PaperID,
	).Scan(&f.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to insert figure: %w", err)
	}
	return f, nil
}

const figureColumns = `id, base64_encoded, filename, dimensions, ocr_text, figure_type,
	caption, mentions_paragraphs, data_table, study_session, condition, user_id, paper_id`

func scanFigure(row interface{ Scan(...interface{}) error }) (*Figure, error) {
	var f Figure
	var ocrText, dataTable sql.NullString
	if err := row.Scan(&f.ID, &f.Base64Encoded, &f.Filename, &f.Dimensions, &ocrText,
		&f.FigureType, &f.Caption, &f.MentionsParagraphs, &dataTable,
		&f.StudySession, &f.Condition, &f.UserID, &f.PaperID); err != nil {
		return nil, err
	}
	f.OCRText = ocrText.String
	if dataTable.Valid {
		f.DataTable = &dataTable.String
	}
	return &f, nil
}

// GetFigure fetches one figure by ID
func (s *Store) GetFigure(ctx context.Context, id int64) (*Figure, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+figureColumns+` FROM figure WHERE id = $1`, id)
	return scanFigure(row)
}

// ListFiguresByPaper returns all figures of a paper
func (s *Store) ListFiguresByPaper(ctx context.Context, paperID int64) ([]Figure, error) {
	return s.listFigures(ctx, `paper_id`, paperID)
}

// ListFiguresByUser returns all figures owned by a user
func (s *Store) ListFiguresByUser(ctx context.Context, userID int64) ([]Figure, error) {
	return s.listFigures(ctx, `user_id`, userID)
}

func (s *Store) listFigures(ctx context.Context, keyColumn string, keyID int64) ([]Figure, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+figureColumns+` FROM figure WHERE `+keyColumn+` = $1 ORDER BY id`, keyID)
	if err != nil {
		return nil, fmt.Errorf("failed to list figures: %w", err)
	}
	defer rows.Close()

	var figures []Figure
	for rows.Next() {
		f, err := scanFigure(rows)
		if err != nil {
			return nil, err
		}
		figures = append(figures, *f)
	}
	return figures, rows.Err()
}

// DeleteFigure removes a figure by ID
func (s *Store) DeleteFigure(ctx context.Context, id int64) error {
	return s.deleteByID(ctx, "figure", id)
}

// =========================================
// Descriptions
// =========================================

// UpsertDescription creates or updates a description. An existing row is
// matched by ID, then by figure_id (one description per figure). On update,
// the previous text is appended to the history log before being replaced.
func (s *Store) UpsertDescription(ctx context.Context, d *Description) (*Description, error) {
	if d.Condition == "" {
		d.Condition = "full"
	}

	var existingID int64
	err := s.db.QueryRowContext(ctx,
		`SELECT id FROM description WHERE id = $1 OR figure_id = $2 LIMIT 1`,
		d.ID, d.FigureID,
	).Scan(&existingID)

	if err == sql.ErrNoRows {
		err = s.db.QueryRowContext(ctx,
			`INSERT INTO description
			 (current_string, current_html, summarized_version, study_session, condition, user_id, figure_id, paper_id)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8) RETURNING id`,
			d.CurrentString, d.CurrentHTML, d.SummarizedVersion, d.StudySession, d.Condition,
			d.UserID, d.FigureID, d.PaperID,
		).Scan(&d.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to insert description: %w", err)
		}
		return d, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up description: %w", err)
	}

	existing, err := s.GetDescription(ctx, existingID)
	if err != nil {
		return nil, err
	}

	// Only non-empty text replaces the current version
	newString, newHTML := existing.CurrentString, existing.CurrentHTML
	history := existing.History
	if d.CurrentString != "" && d.CurrentHTML != "" {
		newString, newHTML = d.CurrentString, d.CurrentHTML
		history, err = appendHistory(history, map[string]string{
			"current_string": newString,
			"current_html":   newHTML,
		})
		if err != nil {
			return nil, err
		}
	}

	summarized := existing.SummarizedVersion
	if d.SummarizedVersion != "" {
		summarized = d.SummarizedVersion
	}

	if _, err := s.db.ExecContext(ctx,
		`UPDATE description SET current_string = $1, current_html = $2, history = $3,
		 summarized_version = $4, study_session = $5, condition = $6, user_id = $7,
		 figure_id = $8, paper_id = $9 WHERE id = $10`,
		newString, newHTML, nullableJSON(history), summarized, d.StudySession, d.Condition,
		d.UserID, d.FigureID, d.PaperID, existingID,
	); err != nil {
		return nil, fmt.Errorf("failed to update description: %w", err)
	}
	return s.GetDescription(ctx, existingID)
}

// GetDescription fetches one description by ID
func (s *Store) GetDescription(ctx context.Context, id int64) (*Description, error) {
	var d Description
	var history []byte
	var summarized sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT id, current_string, current_html, history, summarized_version,
		 study_session, condition, user_id, figure_id, paper_id FROM description WHERE id = $1`,
		id,
	).Scan(&d.ID, &d.CurrentString, &d.CurrentHTML, &history, &summarized,
		&d.StudySession, &d.Condition, &d.UserID, &d.FigureID, &d.PaperID)
	if err != nil {
		return nil, err
	}
	d.History = history
	d.SummarizedVersion = summarized.String
	return &d, nil
}

// GetDescriptionByFigure fetches the description attached to a figure
func (s *Store) GetDescriptionByFigure(ctx context.Context, figureID int64) (*Description, error) {
	var id int64
	err := s.db.QueryRowContext(ctx, `SELECT id FROM description WHERE figure_id = $1`, figureID).Scan(&id)
	if err != nil {
		return nil, err
	}
	return s.GetDescription(ctx, id)
}

// DeleteDescription removes a description by ID
func (s *Store) DeleteDescription(ctx context.Context, id int64) error {
	return s.deleteByID(ctx, "description", id)
}

// =========================================
// Settings
// =========================================

// UpsertSettings creates or updates a settings row, matched by ID. On update,
// the previous settings blob is appended to the history log.
func (s *Store) UpsertSettings(ctx context.Context, st *Settings) (*Settings, error) {
	if st.ID != 0 {
		existing, err := s.GetSettings(ctx, st.ID)
		if err == nil {
			history, err := appendHistory(existing.History, map[string]interface{}{
				"settings": json.RawMessage(existing.CurrentSettings),
			})
			if err != nil {
				return nil, err
			}
			if _, err := s.db.ExecContext(ctx,
				`UPDATE settings SET current_settings = $1, last_changed = NOW(), history = $2,
				 study_session = $3, user_id = $4 WHERE id = $5`,
				st.CurrentSettings, nullableJSON(history), st.StudySession, st.UserID, st.ID,
			); err != nil {
				return nil, fmt.Errorf("failed to update settings: %w", err)
			}
			return s.GetSettings(ctx, st.ID)
		}
		if err != sql.ErrNoRows {
			return nil, err
		}
	}

	err := s.db.QueryRowContext(ctx,
		`INSERT INTO settings (current_settings, study_session, user_id, figure_id)
		 VALUES ($1, $2, $3, $4) RETURNING id, last_changed`,
		st.CurrentSettings, st.StudySession, st.UserID, st.FigureID,
	).Scan(&st.ID, &st.LastChanged)
	if err != nil {
		return nil, fmt.Errorf("failed to insert settings: %w", err)
	}
	return st, nil
}

// GetSettings fetches one settings row by ID
func (s *Store) GetSettings(ctx context.Context, id int64) (*Settings, error) {
	var st Settings
	var current, history []byte
	var figureID sql.NullInt64
	err := s.db.QueryRowContext(ctx,
		`SELECT id, current_settings, last_changed, history, study_session, user_id, figure_id
		 FROM settings WHERE id = $1`,
		id,
	).Scan(&st.ID, &current, &st.LastChanged, &history, &st.StudySession, &st.UserID, &figureID)
	if err != nil {
		return nil, err
	}
	st.CurrentSettings = current
	st.History = history
	if figureID.Valid {
		st.FigureID = &figureID.Int64
	}
	return &st, nil
}

// ListSettingsByUser returns all settings rows of a user
func (s *Store) ListSettingsByUser(ctx context.Context, userID int64) ([]Settings, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id FROM settings WHERE user_id = $1 ORDER BY id`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list settings: %w", err)
	}
	defer rows.Close()

	var out []Settings
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		st, err := s.GetSettings(ctx, id)
		if err != nil {
			return nil, err
		}
		out = append(out, *st)
	}
	return out, rows.Err()
}

// DeleteSettings removes a settings row by ID
func (s *Store) DeleteSettings(ctx context.Context, id int64) error {
	return s.deleteByID(ctx, "settings", id)
}

// =========================================
// Suggestions
// =========================================

// UpsertSuggestion creates or updates a suggestion, matched by ID
func (s *Store) UpsertSuggestion(ctx context.Context, sg *Suggestion) (*Suggestion, error) {
	if sg.Condition == "" {
		sg.Condition = "full"
	}

	if sg.ID != 0 {
		res, err := s.db.ExecContext(ctx,
			`UPDATE suggestions SET content = $1, suggestion_type = $2, model = $3, text_context = $4,
			 study_session = $5, user_id = $6, description_id = $7 WHERE id = $8`,
			sg.Content, sg.SuggestionType, sg.Model, sg.TextContext, sg.StudySession,
			sg.UserID, sg.DescriptionID, sg.ID,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to update suggestion: %w", err)
		}
		if n, _ := res.RowsAffected(); n > 0 {
			return sg, nil
		}
	}

	err := s.db.QueryRowContext(ctx,
		`INSERT INTO suggestions (content, suggestion_type, model, text_context, study_session, condition, user_id, description_id)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8) RETURNING id`,
		sg.Content, sg.SuggestionType, sg.Model, sg.TextContext, sg.StudySession, sg.Condition,
		sg.UserID, sg.DescriptionID,
	).Scan(&sg.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to insert suggestion: %w", err)
	}
	return sg, nil
}

// ListSuggestionsByDescription returns all suggestions attached to a description
func (s *Store) ListSuggestionsByDescription(ctx context.Context, descriptionID int64) ([]Suggestion, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, content, suggestion_type, model, text_context, study_session, condition, user_id, description_id
		 FROM suggestions WHERE description_id = $1 ORDER BY id`,
		descriptionID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list suggestions: %w", err)
	}
	defer rows.Close()

	var out []Suggestion
	for rows.Next() {
		var sg Suggestion
		var content []byte
		if err := rows.Scan(&sg.ID, &content, &sg.SuggestionType, &sg.Model, &sg.TextContext,
			&sg.StudySession, &sg.Condition, &sg.UserID, &sg.DescriptionID); err != nil {
			return nil, err
		}
		sg.Content = content
		out = append(out, sg)
	}
	return out, rows.Err()
}

// DeleteSuggestion removes a suggestion by ID
func (s *Store) DeleteSuggestion(ctx context.Context, id int64) error {
	return s.deleteByID(ctx, "suggestions", id)
}

// =========================================
// Events
// =========================================

// InsertEvent appends one interaction event
func (s *Store) InsertEvent(ctx context.Context, e *Event) (*Event, error) {
	if e.Condition == "" {
		e.Condition = "full"
	}
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO event (user_id, figure_id, description_id, condition, study_session, event_type, event_data)
		 VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING id, event_time`,
		e.UserID, e.FigureID, e.DescriptionID, e.Condition, e.StudySession, e.EventType, e.EventData,
	).Scan(&e.ID, &e.EventTime)
	if err != nil {
		return nil, fmt.Errorf("failed to insert event: %w", err)
	}
	return e, nil
}

// ListEventsByUser returns all events logged for a user
func (s *Store) ListEventsByUser(ctx context.Context, userID int64) ([]Event, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, figure_id, description_id, condition, study_session, event_type, event_data, event_time
		 FROM event WHERE user_id = $1 ORDER BY id`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var e Event
		var figureID, descriptionID sql.NullInt64
		var eventData []byte
		if err := rows.Scan(&e.ID, &e.UserID, &figureID, &descriptionID, &e.Condition,
			&e.StudySession, &e.EventType, &eventData, &e.EventTime); err != nil {
			return nil, err
		}
		if figureID.Valid {
			e.FigureID = &figureID.Int64
		}
		if descriptionID.Valid {
			e.DescriptionID = &descriptionID.Int64
		}
		e.EventData = eventData
		out = append(out, e)
	}
	return out, rows.Err()
}

// =========================================
// Generated Descriptions
// =========================================

// InsertGeneratedDescription stores one machine-generated description
func (s *Store) InsertGeneratedDescription(ctx context.Context, g *GeneratedDescription) (*GeneratedDescription, error) {
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO generated_description (description, model, figure_id) VALUES ($1, $2, $3) RETURNING id`,
		g.Description, g.Model, g.FigureID,
	).Scan(&g.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to insert generated description: %w", err)
	}
	return g, nil
}

// ListGeneratedDescriptionsByFigure returns all generated descriptions for a figure
func (s *Store) ListGeneratedDescriptionsByFigure(ctx context.Context, figureID int64) ([]GeneratedDescription, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, description, model, figure_id FROM generated_description WHERE figure_id = $1 ORDER BY id`,
		figureID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list generated descriptions: %w", err)
	}
	defer rows.Close()

	var out []GeneratedDescription
	for rows.Next() {
		var g GeneratedDescription
		if err := rows.Scan(&g.ID, &g.Description, &g.Model, &g.FigureID); err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

// =========================================
// Helpers
// =========================================

func (s *Store) deleteByID(ctx context.Context, table string, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM `+table+` WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete from %s: %w", table, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// appendHistory appends entry to a JSON array, creating the array when the
// stored history is empty or not a list
func appendHistory(history json.RawMessage, entry interface{}) (json.RawMessage, error) {
	var list []json.RawMessage
	if len(history) > 0 {
		if err := json.Unmarshal(history, &list); err != nil {
			list = nil
		}
	}
	raw, err := json.Marshal(entry)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal history entry: %w", err)
	}
	list = append(list, raw)
	return json.Marshal(list)
}

// nullableJSON maps empty JSON to SQL NULL
func nullableJSON(data json.RawMessage) interface{} {
	if len(data) == 0 {
		return nil
	}
	return []byte(data)
}
