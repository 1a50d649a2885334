package storage

import (
	"database/sql"
	"strings"
	"time"

	"github.com/google/uuid"

	"browtool/pkg/errors"
)

// Tool is a stored, named browser-automation script template.
type Tool struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Script      string    `json:"script"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// CreateTool inserts a new tool. Names are unique; a duplicate fails with
// a tool-exists error.
func (s *Store) CreateTool(name, description, script string) (*Tool, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, errors.New(errors.ErrCodeInvalidInput, "tool name cannot be empty")
	}
	if strings.TrimSpace(script) == "" {
		return nil, errors.New(errors.ErrCodeInvalidInput, "tool script cannot be empty")
	}

	now := time.Now().UTC()
	tool := &Tool{
		ID:          uuid.NewString(),
		Name:        name,
		Description: description,
		Script:      script,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	_, err := s.execRetry(
		`INSERT INTO tools (id, name, description, script_text, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)`,
		tool.ID, tool.Name, tool.Description, tool.Script, tool.CreatedAt, tool.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, errors.New(errors.ErrCodeToolExists, "tool already exists").WithContext("name", name)
		}
		return nil, errors.Wrap(err, errors.ErrCodeStorageWrite, "failed to create tool")
	}
	return tool, nil
}

// GetTool fetches a tool by name.
func (s *Store) GetTool(name string) (*Tool, error) {
	row := s.db.QueryRow(
		`SELECT id, name, description, script_text, created_at, updated_at FROM tools WHERE name = ?`,
		strings.TrimSpace(name),
	)
	return scanTool(row)
}

// ListTools returns all tools, most recently updated first.
func (s *Store) ListTools() ([]*Tool, error) {
	rows, err := s.db.Query(
		`SELECT id, name, description, script_text, created_at, updated_at FROM tools ORDER BY updated_at DESC, name ASC`,
	)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeStorageRead, "failed to list tools")
	}
	defer rows.Close()

	var tools []*Tool
	for rows.Next() {
		var t Tool
		if err := rows.Scan(&t.ID, &t.Name, &t.Description, &t.Script, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeStorageRead, "failed to scan tool row")
		}
		tools = append(tools, &t)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeStorageRead, "failed to iterate tools")
	}
	return tools, nil
}

// UpdateTool rewrites a tool's script and/or description and bumps
// updated_at. Empty fields keep their existing values.
func (s *Store) UpdateTool(name, description, script string) (*Tool, error) {
	existing, err := s.GetTool(name)
	if err != nil {
		return nil, err
	}

	if strings.TrimSpace(description) != "" {
		existing.Description = description
	}
	if strings.TrimSpace(script) != "" {
		existing.Script = script
	}
	existing.UpdatedAt = time.Now().UTC()

	_, err = s.execRetry(
		`UPDATE tools SET description = ?, script_text = ?, updated_at = ? WHERE id = ?`,
		existing.Description, existing.Script, existing.UpdatedAt, existing.ID,
	)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeStorageWrite, "failed to update tool")
	}
	return existing, nil
}

// UpsertTool creates the tool or, when the name already exists, replaces
// its script and description. Used by the recorder.
func (s *Store) UpsertTool(name, description, script string) (*Tool, error) {
	tool, err := s.CreateTool(name, description, script)
	if err == nil {
		return tool, nil
	}
	if !errors.IsCode(err, errors.ErrCodeToolExists) {
		return nil, err
	}
	return s.UpdateTool(name, description, script)
}

// RenameTool changes a tool's name, keeping its script and history.
func (s *Store) RenameTool(oldName, newName string) error {
	newName = strings.TrimSpace(newName)
	if newName == "" {
		return errors.New(errors.ErrCodeInvalidInput, "new tool name cannot be empty")
	}

	res, err := s.execRetry(
		`UPDATE tools SET name = ?, updated_at = ? WHERE name = ?`,
		newName, time.Now().UTC(), strings.TrimSpace(oldName),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return errors.New(errors.ErrCodeToolExists, "tool already exists").WithContext("name", newName)
		}
		return errors.Wrap(err, errors.ErrCodeStorageWrite, "failed to rename tool")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errors.New(errors.ErrCodeToolNotFound, "tool not found").WithContext("name", oldName)
	}
	return nil
}

// DeleteTool removes a tool by name.
func (s *Store) DeleteTool(name string) error {
	res, err := s.execRetry(`DELETE FROM tools WHERE name = ?`, strings.TrimSpace(name))
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeStorageWrite, "failed to delete tool")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errors.New(errors.ErrCodeToolNotFound, "tool not found").WithContext("name", name)
	}
	return nil
}

func scanTool(row *sql.Row) (*Tool, error) {
	var t Tool
	err := row.Scan(&t.ID, &t.Name, &t.Description, &t.Script, &t.CreatedAt, &t.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, errors.New(errors.ErrCodeToolNotFound, "tool not found")
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeStorageRead, "failed to read tool")
	}
	return &t, nil
}
