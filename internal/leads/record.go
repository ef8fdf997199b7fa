// Package leads reads and updates lead records held by the backend and keeps
// the admin panel state.
package leads

import (
	"encoding/json"
	"errors"
	"strings"
	"time"

	"finitefield.org/trademark-web/internal/wizard"
)

// Status is the processing state of a lead.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusRejected   Status = "rejected"
)

var (
	// ErrInvalidStatus is returned for status values outside the known set.
	ErrInvalidStatus = errors.New("leads: invalid status")
	// ErrUnknownRecord is returned when a record id is not loaded.
	ErrUnknownRecord = errors.New("leads: unknown record")
	// ErrNotFound is returned when the backend has no such record.
	ErrNotFound = errors.New("leads: record not found")
)

// Statuses lists every status in workflow order.
func Statuses() []Status {
	return []Status{StatusPending, StatusProcessing, StatusCompleted, StatusRejected}
}

// ParseStatus validates raw input. The empty string is not a status.
func ParseStatus(raw string) (Status, bool) {
	s := Status(strings.ToLower(strings.TrimSpace(raw)))
	for _, known := range Statuses() {
		if s == known {
			return s, true
		}
	}
	return "", false
}

// Record is one lead as stored by the backend. SearchData is opaque.
type Record struct {
	ID         string          `json:"id"`
	FormType   string          `json:"formType"`
	SearchData json.RawMessage `json:"searchData"`
	CreatedAt  time.Time       `json:"createdAt"`
	Status     Status          `json:"status"`
}

// UnmarshalJSON accepts both the camelCase shape and the snake_case column names.
func (r *Record) UnmarshalJSON(data []byte) error {
	var raw struct {
		ID              json.RawMessage `json:"id"`
		SearchID        string          `json:"search_id"`
		FormType        string          `json:"formType"`
		FormTypeSnake   string          `json:"form_type"`
		SearchData      json.RawMessage `json:"searchData"`
		SearchDataSnake json.RawMessage `json:"search_data"`
		CreatedAt       string          `json:"createdAt"`
		CreatedAtSnake  string          `json:"created_at"`
		Status          string          `json:"status"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	r.ID = rawID(raw.ID)
	if r.ID == "" {
		r.ID = raw.SearchID
	}
	r.FormType = firstNonEmpty(raw.FormType, raw.FormTypeSnake)
	r.SearchData = raw.SearchData
	if len(r.SearchData) == 0 || string(r.SearchData) == "null" {
		r.SearchData = raw.SearchDataSnake
	}
	r.SearchData = unquoteJSON(r.SearchData)
	r.CreatedAt = parseTime(firstNonEmpty(raw.CreatedAt, raw.CreatedAtSnake))
	r.Status = Status(strings.ToLower(strings.TrimSpace(raw.Status)))
	if r.Status == "" {
		r.Status = StatusPending
	}
	return nil
}

// Form decodes SearchData as a submitted wizard form.
func (r Record) Form() (wizard.FormState, error) {
	var form wizard.FormState
	if len(r.SearchData) == 0 {
		return form, errors.New("leads: record has no search data")
	}
	if err := json.Unmarshal(r.SearchData, &form); err != nil {
		return form, err
	}
	form.Normalize()
	return form, nil
}

// Summary holds the fields the lead table shows.
type Summary struct {
	MarkName  string
	MarkType  string
	Contact   string
	Email     string
	Countries int
}

// Summary extracts display fields, tolerating partial or foreign search data.
func (r Record) Summary() Summary {
	form, err := r.Form()
	if err != nil {
		return Summary{}
	}
	name := strings.TrimSpace(form.Contact.FirstName + " " + form.Contact.LastName)
	return Summary{
		MarkName:  form.MarkName,
		MarkType:  string(form.MarkType),
		Contact:   name,
		Email:     form.Contact.Email,
		Countries: len(form.Countries),
	}
}

func rawID(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return strings.TrimSpace(string(raw))
}

// unquoteJSON unwraps search data stored as a JSON string.
func unquoteJSON(raw json.RawMessage) json.RawMessage {
	var s string
	if len(raw) > 0 && raw[0] == '"' && json.Unmarshal(raw, &s) == nil && json.Valid([]byte(s)) {
		return json.RawMessage(s)
	}
	return raw
}

func parseTime(raw string) time.Time {
	raw = strings.TrimSpace(raw)
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02 15:04:05.999999-07", "2006-01-02T15:04:05.999999"} {
		if t, err := time.Parse(layout, raw); err == nil {
			return t
		}
	}
	return time.Time{}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
