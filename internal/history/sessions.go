package history

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/era-ai/era/pkg/types"
)

// Save writes s and its attempts, replacing any earlier copy with the same
// ID. A non-empty FinalCode is also stored as the <agent>.js artifact.
func (st *Store) Save(s *types.Session) error {
	if s.ID == "" {
		return fmt.Errorf("session has no id")
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	tx, err := st.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(`
		INSERT INTO session (
			id, agent_name, prompt, language, model, final_code,
			max_attempts, outcome, created_at, completed_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			agent_name = excluded.agent_name,
			prompt = excluded.prompt,
			language = excluded.language,
			model = excluded.model,
			final_code = excluded.final_code,
			max_attempts = excluded.max_attempts,
			outcome = excluded.outcome,
			completed_at = excluded.completed_at
	`,
		s.ID,
		s.AgentName,
		s.OriginalPrompt,
		s.Language,
		s.Model,
		s.FinalCode,
		s.MaxAttempts,
		string(s.Outcome),
		formatTime(s.CreatedAt),
		formatTimePtr(s.CompletedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}

	if _, err := tx.Exec("DELETE FROM attempt WHERE session_id = ?", s.ID); err != nil {
		return fmt.Errorf("failed to clear attempts: %w", err)
	}

	for _, a := range s.Attempts {
		utilities, err := json.Marshal(a.Utilities)
		if err != nil {
			return fmt.Errorf("failed to marshal utilities: %w", err)
		}
		var execution []byte
		if a.ExecutionResult != nil {
			if execution, err = json.Marshal(a.ExecutionResult); err != nil {
				return fmt.Errorf("failed to marshal execution result: %w", err)
			}
		}

		_, err = tx.Exec(`
			INSERT INTO attempt (
				session_id, number, prompt, raw_response, extraction_succeeded,
				extracted_code, utilities, generation_error, execution,
				started_at, completed_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`,
			s.ID,
			a.AttemptNumber,
			a.PromptSent,
			a.RawResponse,
			a.ExtractionSucceeded,
			a.ExtractedCode,
			string(utilities),
			a.GenerationError,
			nullString(string(execution)),
			formatTime(a.StartedAt),
			formatTime(a.CompletedAt),
		)
		if err != nil {
			return fmt.Errorf("failed to save attempt %d: %w", a.AttemptNumber, err)
		}
	}

	if s.FinalCode != "" {
		if err := storeArtifact(tx, s.ID, s.AgentName+".js", []byte(s.FinalCode)); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit session: %w", err)
	}
	return nil
}

const sessionColumns = `
	id, agent_name, prompt, language, model, final_code,
	max_attempts, outcome, created_at, completed_at
`

// Get returns one session with its attempts.
func (st *Store) Get(id string) (*types.Session, error) {
	st.mu.RLock()
	defer st.mu.RUnlock()

	row := st.db.QueryRow("SELECT "+sessionColumns+" FROM session WHERE id = ?", id)
	s, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("session %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}

	attempts, err := st.attempts([]string{id})
	if err != nil {
		return nil, err
	}
	s.Attempts = attempts[id]
	return s, nil
}

// LoadAll returns every session, oldest first. Rows that cannot be decoded
// are logged and skipped.
func (st *Store) LoadAll() ([]*types.Session, error) {
	return st.List(nil)
}

// List returns sessions matching filter, oldest first. A nil filter matches
// everything.
func (st *Store) List(filter *types.SessionFilter) ([]*types.Session, error) {
	st.mu.RLock()
	defer st.mu.RUnlock()

	var whereClauses []string
	var args []any

	if filter != nil {
		if filter.AgentName != "" {
			whereClauses = append(whereClauses, "agent_name = ?")
			args = append(args, filter.AgentName)
		}
		if len(filter.Outcome) > 0 {
			placeholders := make([]string, len(filter.Outcome))
			for i, o := range filter.Outcome {
				placeholders[i] = "?"
				args = append(args, string(o))
			}
			whereClauses = append(whereClauses, fmt.Sprintf("outcome IN (%s)", strings.Join(placeholders, ",")))
		}
	}

	query := "SELECT " + sessionColumns + " FROM session"
	if len(whereClauses) > 0 {
		query += " WHERE " + strings.Join(whereClauses, " AND ")
	}
	query += " ORDER BY created_at ASC, rowid ASC"

	if filter != nil && filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
		if filter.Offset > 0 {
			query += fmt.Sprintf(" OFFSET %d", filter.Offset)
		}
	}

	rows, err := st.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*types.Session
	var ids []string
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			st.logger.Warn("skipping unreadable session", "error", err)
			continue
		}
		sessions = append(sessions, s)
		ids = append(ids, s.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read sessions: %w", err)
	}

	attempts, err := st.attempts(ids)
	if err != nil {
		return nil, err
	}
	for _, s := range sessions {
		s.Attempts = attempts[s.ID]
	}
	return sessions, nil
}

// LatestSuccess returns the most recently completed successful session for
// agentName.
func (st *Store) LatestSuccess(agentName string) (*types.Session, error) {
	st.mu.RLock()
	row := st.db.QueryRow(`
		SELECT id FROM session
		WHERE agent_name = ? AND outcome = ? AND final_code != ''
		ORDER BY completed_at DESC, created_at DESC, rowid DESC
		LIMIT 1
	`, agentName, string(types.OutcomeSuccess))
	var id string
	err := row.Scan(&id)
	st.mu.RUnlock()

	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("agent %s: %w", agentName, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query agent: %w", err)
	}
	return st.Get(id)
}

// attempts loads the attempts of ids grouped by session. Rows with
// undecodable execution results are logged and skipped.
func (st *Store) attempts(ids []string) (map[string][]types.GenerationAttempt, error) {
	out := make(map[string][]types.GenerationAttempt, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	placeholders := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		placeholders[i] = "?"
		args[i] = id
	}

	rows, err := st.db.Query(`
		SELECT
			session_id, number, prompt, raw_response, extraction_succeeded,
			extracted_code, utilities, generation_error, execution,
			started_at, completed_at
		FROM attempt
		WHERE session_id IN (`+strings.Join(placeholders, ",")+`)
		ORDER BY session_id, number
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query attempts: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			sessionID                 string
			a                         types.GenerationAttempt
			prompt, raw, code, genErr sql.NullString
			utilities, execution      sql.NullString
			startedAt, completedAt    sql.NullString
		)
		if err := rows.Scan(
			&sessionID, &a.AttemptNumber, &prompt, &raw, &a.ExtractionSucceeded,
			&code, &utilities, &genErr, &execution, &startedAt, &completedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan attempt: %w", err)
		}

		a.PromptSent = prompt.String
		a.RawResponse = raw.String
		a.ExtractedCode = code.String
		a.GenerationError = genErr.String
		a.StartedAt = parseTime(startedAt.String)
		a.CompletedAt = parseTime(completedAt.String)

		if utilities.String != "" {
			if err := json.Unmarshal([]byte(utilities.String), &a.Utilities); err != nil {
				st.logger.Warn("skipping unreadable attempt", "session", sessionID, "attempt", a.AttemptNumber, "error", err)
				continue
			}
		}
		if execution.String != "" {
			a.ExecutionResult = &types.ExecutionResult{}
			if err := json.Unmarshal([]byte(execution.String), a.ExecutionResult); err != nil {
				st.logger.Warn("skipping unreadable attempt", "session", sessionID, "attempt", a.AttemptNumber, "error", err)
				continue
			}
		}

		out[sessionID] = append(out[sessionID], a)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSession(row scanner) (*types.Session, error) {
	var (
		s                     types.Session
		language, model, code sql.NullString
		outcome               sql.NullString
		maxAttempts           sql.NullInt64
		createdAt             string
		completedAt           sql.NullString
	)
	if err := row.Scan(
		&s.ID, &s.AgentName, &s.OriginalPrompt, &language, &model, &code,
		&maxAttempts, &outcome, &createdAt, &completedAt,
	); err != nil {
		return nil, err
	}

	created, err := time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return nil, fmt.Errorf("session %s: bad created_at %q: %w", s.ID, createdAt, err)
	}

	s.Language = language.String
	s.Model = model.String
	s.FinalCode = code.String
	s.MaxAttempts = int(maxAttempts.Int64)
	s.Outcome = types.Outcome(outcome.String)
	s.CreatedAt = created
	if completedAt.Valid && completedAt.String != "" {
		t := parseTime(completedAt.String)
		s.CompletedAt = &t
	}
	return &s, nil
}

// timeLayout is fixed width so that text order matches time order.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	if t.IsZero() {
		t = time.Now()
	}
	return t.UTC().Format(timeLayout)
}

func formatTimePtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return formatTime(*t)
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339Nano, s)
	return t
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
