/**
 * Persisted entity types
 *
 * Column names follow the database schema; JSON tags match what the
 * annotation front end exchanges with the REST layer.
 */

package storage

import (
	"encoding/json"
	"time"
)

// User is an annotator account
type User struct {
	ID                  int64     `json:"id"`
	Username            string    `json:"username"`
	GID                 string    `json:"g_id"`
	DateFirstInteracted time.Time `json:"date_first_interacted"`
	ActiveDescriptionID *int64    `json:"activedescription_id,omitempty"`
}

// Paper is one uploaded PDF with its extracted metadata
type Paper struct {
	ID           int64     `json:"id"`
	PDFFile      []byte    `json:"pdf_file"`
	Filename     string    `json:"filename"`
	Title        string    `json:"title"`
	Authors      string    `json:"authors"` // comma-separated
	DateUploaded time.Time `json:"date_uploaded"`
	UserID       int64     `json:"user_id"`
}

// Figure is one processed figure of a paper
type Figure struct {
	ID                 int64   `json:"id"`
	Base64Encoded      string  `json:"base64_encoded"`
	Filename           string  `json:"filename"`
	Dimensions         string  `json:"dimensions"` // JSON {"width": w, "height": h}
	OCRText            string  `json:"ocr_text"`
	FigureType         string  `json:"figure_type"`
	Caption            string  `json:"caption"`
	MentionsParagraphs string  `json:"mentions_paragraphs"`
	DataTable          *string `json:"data_table"`
	StudySession       bool    `json:"study_session"`
	Condition          string  `json:"condition"`
	UserID             int64   `json:"user_id"`
	PaperID            int64   `json:"paper_id"`
}

// Description is a human-authored figure description with edit history
type Description struct {
	ID                int64           `json:"id"`
	CurrentString     string          `json:"current_string"`
	CurrentHTML       string          `json:"current_html"`
	History           json.RawMessage `json:"history,omitempty"`
	SummarizedVersion string          `json:"summarized_version"`
	StudySession      bool            `json:"study_session"`
	Condition         string          `json:"condition"`
	UserID            int64           `json:"user_id"`
	FigureID          int64           `json:"figure_id"`
	PaperID           int64           `json:"paper_id"`
}

// Settings is a user's editor configuration with change history
type Settings struct {
	ID              int64           `json:"id"`
	CurrentSettings json.RawMessage `json:"current_settings"`
	LastChanged     time.Time       `json:"last_changed"`
	History         json.RawMessage `json:"history,omitempty"`
	StudySession    bool            `json:"study_session"`
	UserID          int64           `json:"user_id"`
	FigureID        *int64          `json:"figure_id,omitempty"`
}

// Suggestion is one model-proposed description aid shown to an annotator
type Suggestion struct {
	ID             int64           `json:"id"`
	Content        json.RawMessage `json:"content"`
	SuggestionType string          `json:"suggestion_type"`
	Model          string          `json:"model"`
	TextContext    string          `json:"text_context"`
	StudySession   bool            `json:"study_session"`
	Condition      string          `json:"condition"`
	UserID         int64           `json:"user_id"`
	DescriptionID  int64           `json:"description_id"`
}

// Event is one logged interaction. Events are append-only.
type Event struct {
	ID            int64           `json:"id"`
	UserID        int64           `json:"user_id"`
	FigureID      *int64          `json:"figure_id,omitempty"`
	DescriptionID *int64          `json:"description_id,omitempty"`
	Condition     string          `json:"condition"`
	StudySession  bool            `json:"study_session"`
	EventType     string          `json:"event_type"`
	EventData     json.RawMessage `json:"event_data"`
	EventTime     time.Time       `json:"event_time"`
}

// GeneratedDescription is a machine-generated figure description
type GeneratedDescription struct {
	ID          int64  `json:"id"`
	Description string `json:"description"`
	Model       string `json:"model"`
	FigureID    int64  `json:"figure_id"`
}
