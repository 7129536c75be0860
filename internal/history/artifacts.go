package history

import (
	"database/sql"
	"errors"
	"fmt"
	"mime"
	"path/filepath"
	"time"
)

// Artifact is a file stored alongside a session.
type Artifact struct {
	SessionID string    `json:"session_id"`
	Name      string    `json:"name"`
	Content   []byte    `json:"-"`
	Size      int64     `json:"size"`
	MimeType  string    `json:"mimetype"`
	CreatedAt time.Time `json:"created_at"`
}

func storeArtifact(tx *sql.Tx, sessionID, name string, data []byte) error {
	mimetype := mime.TypeByExtension(filepath.Ext(name))
	if mimetype == "" {
		mimetype = "application/octet-stream"
	}

	_, err := tx.Exec(`
		INSERT INTO artifact (session_id, name, content, size, mimetype, ctime)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(session_id, name) DO UPDATE SET
			content = excluded.content,
			size = excluded.size,
			mimetype = excluded.mimetype
	`, sessionID, name, data, len(data), mimetype, formatTime(time.Now()))
	if err != nil {
		return fmt.Errorf("failed to store artifact: %w", err)
	}
	return nil
}

// Artifacts lists the artifacts of a session without their content.
func (st *Store) Artifacts(sessionID string) ([]*Artifact, error) {
	st.mu.RLock()
	defer st.mu.RUnlock()

	rows, err := st.db.Query(`
		SELECT name, size, mimetype, ctime
		FROM artifact
		WHERE session_id = ?
		ORDER BY name
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query artifacts: %w", err)
	}
	defer rows.Close()

	var artifacts []*Artifact
	for rows.Next() {
		a := &Artifact{SessionID: sessionID}
		var ctime string
		if err := rows.Scan(&a.Name, &a.Size, &a.MimeType, &ctime); err != nil {
			return nil, fmt.Errorf("failed to scan artifact: %w", err)
		}
		a.CreatedAt = parseTime(ctime)
		artifacts = append(artifacts, a)
	}
	return artifacts, rows.Err()
}

// Artifact returns one artifact with its content.
func (st *Store) Artifact(sessionID, name string) (*Artifact, error) {
	st.mu.RLock()
	defer st.mu.RUnlock()

	a := &Artifact{SessionID: sessionID, Name: name}
	var ctime string
	err := st.db.QueryRow(`
		SELECT content, size, mimetype, ctime
		FROM artifact
		WHERE session_id = ? AND name = ?
	`, sessionID, name).Scan(&a.Content, &a.Size, &a.MimeType, &ctime)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("artifact %s/%s: %w", sessionID, name, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get artifact: %w", err)
	}
	a.CreatedAt = parseTime(ctime)
	return a, nil
}

// Code returns the stored final program of a session.
func (st *Store) Code(sessionID string) (string, error) {
	s, err := st.Get(sessionID)
	if err != nil {
		return "", err
	}
	a, err := st.Artifact(sessionID, s.AgentName+".js")
	if err != nil {
		return "", err
	}
	return string(a.Content), nil
}
