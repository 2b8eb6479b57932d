package database

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// Run statuses. The lifecycle is monotonic: queued, then running, then one of the
// terminal states (succeeded, failed, interrupted).
const (
	RunStatusQueued      = "queued"
	RunStatusRunning     = "running"
	RunStatusSucceeded   = "succeeded"
	RunStatusFailed      = "failed"
	RunStatusInterrupted = "interrupted"
)

// ScheduledJob represents a persisted job definition. The identifier is
// either a plain registered function name (e.g. "sql_maintenance") or a
// "usecase:"-prefixed qualified path (e.g. "usecase:report.DailyDigest").
// Params holds the raw JSON parameter payload as stored; TargetChats holds
// a JSON array of Telegram chat IDs the result is delivered to.
type ScheduledJob struct {
	ID        uint      `db:"id"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`

	BotID       int64        `db:"bot_id"`
	Name        string       `db:"name"`
	Identifier  string       `db:"identifier"`
	Schedule    string       `db:"schedule"`
	Params      string       `db:"params"`
	TargetChats string       `db:"target_chats"`
	Enabled     bool         `db:"enabled"`
	LastRunAt   sql.NullTime `db:"last_run_at"`
}

// ChatIDs decodes the TargetChats JSON array. An empty or "null" column
// yields an empty slice.
func (j *ScheduledJob) ChatIDs() ([]int64, error) {
	if j.TargetChats == "" || j.TargetChats == "null" {
		return nil, nil
	}
	var ids []int64
	if err := json.Unmarshal([]byte(j.TargetChats), &ids); err != nil {
		return nil, fmt.Errorf("failed to decode target chats for job %q: %w", j.Name, err)
	}
	return ids, nil
}

// SetChatIDs encodes ids into the TargetChats column.
func (j *ScheduledJob) SetChatIDs(ids []int64) error {
	if ids == nil {
		ids = []int64{}
	}
	raw, err := json.Marshal(ids)
	if err != nil {
		return fmt.Errorf("failed to encode target chats: %w", err)
	}
	j.TargetChats = string(raw)
	return nil
}

// JobRun records a single execution of a scheduled job: when it started and
// finished, its terminal status, and the result text or error message.
// Identifier is denormalized from the job definition so run history survives
// definition edits.
type JobRun struct {
	ID        string    `db:"id"`
	CreatedAt time.Time `db:"created_at"`

	BotID      int64          `db:"bot_id"`
	JobID      uint           `db:"job_id"`
	Identifier string         `db:"identifier"`
	Status     string         `db:"status"`
	StartedAt  sql.NullTime   `db:"started_at"`
	FinishedAt sql.NullTime   `db:"finished_at"`
	Result     sql.NullString `db:"result"`
	Error      sql.NullString `db:"error"`
}
