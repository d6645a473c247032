package queue

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"conveyor/internal/config"
)

// Store manages task persistence backed by SQLite.
type Store struct {
	db   *sql.DB
	path string
}

// Open initializes or connects to the task database and applies the schema.
func Open(cfg *config.Config) (*Store, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}
	return OpenPath(filepath.Join(cfg.Paths.DataDir, "tasks.db"))
}

// OpenPath connects to a task database at an explicit path.
func OpenPath(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{db: db, path: dbPath}
	if err := store.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}

	return store, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// Create inserts a new task. CreatedAt/UpdatedAt are stamped here.
func (s *Store) Create(ctx context.Context, task *Task) error {
	if task == nil {
		return errors.New("task is nil")
	}
	if strings.TrimSpace(task.ID) == "" {
		return errors.New("task id is required")
	}
	now := time.Now().UTC()
	task.CreatedAt = now
	task.UpdatedAt = now

	stagesJSON, metadataJSON, logJSON, depsJSON, err := encodeTaskJSON(task)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(
		ctx,
		`INSERT INTO tasks (
            id, upload_id, file_path, file_type, priority, priority_rank, status,
            pipeline_id, stages_json, current_stage, progress, started_at,
            completed_at, error_message, retry_count, max_retries, auto_process,
            metadata_json, processing_log_json, dependencies_json, created_at, updated_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		task.ID,
		nullableString(task.UploadID),
		nullableString(task.FilePath),
		nullableString(task.FileType),
		string(task.Priority),
		task.Priority.Rank(),
		string(task.Status),
		nullableString(task.PipelineID),
		nullableString(stagesJSON),
		nullableString(string(task.CurrentStage)),
		task.Progress,
		nullableTime(task.StartedAt),
		nullableTime(task.CompletedAt),
		nullableString(task.ErrorMessage),
		task.RetryCount,
		task.MaxRetries,
		boolToInt(task.AutoProcess),
		nullableString(metadataJSON),
		nullableString(logJSON),
		nullableString(depsJSON),
		now.Format(time.RFC3339Nano),
		now.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("insert task: %w", err)
	}
	return nil
}

// GetByID fetches a task by identifier. Returns (nil, nil) when absent.
func (s *Store) GetByID(ctx context.Context, id string) (*Task, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = ?`, id)
	task, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get task: %w", err)
	}
	return task, nil
}

// Update persists changes to an existing task unconditionally.
// Runner code should prefer UpdateOwned to honor control transitions.
func (s *Store) Update(ctx context.Context, task *Task) error {
	affected, err := s.update(ctx, task, nil)
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("task %s not found", task.ID)
	}
	return nil
}

// UpdateOwned persists changes only while the stored status is one of the
// allowed values. A false return means another writer transitioned the task
// (cancel, pause) and the caller must reload and obey the stored state.
func (s *Store) UpdateOwned(ctx context.Context, task *Task, allowed ...Status) (bool, error) {
	if len(allowed) == 0 {
		return false, errors.New("allowed statuses are required")
	}
	affected, err := s.update(ctx, task, allowed)
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

func (s *Store) update(ctx context.Context, task *Task, allowed []Status) (int64, error) {
	if task == nil {
		return 0, errors.New("task is nil")
	}
	task.UpdatedAt = time.Now().UTC()

	stagesJSON, metadataJSON, logJSON, depsJSON, err := encodeTaskJSON(task)
	if err != nil {
		return 0, err
	}

	query := `UPDATE tasks
         SET upload_id = ?, file_path = ?, file_type = ?, priority = ?, priority_rank = ?,
             status = ?, pipeline_id = ?, stages_json = ?, current_stage = ?, progress = ?,
             started_at = ?, completed_at = ?, error_message = ?, retry_count = ?,
             max_retries = ?, auto_process = ?, metadata_json = ?, processing_log_json = ?,
             dependencies_json = ?, updated_at = ?
         WHERE id = ?`
	args := []any{
		nullableString(task.UploadID),
		nullableString(task.FilePath),
		nullableString(task.FileType),
		string(task.Priority),
		task.Priority.Rank(),
		string(task.Status),
		nullableString(task.PipelineID),
		nullableString(stagesJSON),
		nullableString(string(task.CurrentStage)),
		task.Progress,
		nullableTime(task.StartedAt),
		nullableTime(task.CompletedAt),
		nullableString(task.ErrorMessage),
		task.RetryCount,
		task.MaxRetries,
		boolToInt(task.AutoProcess),
		nullableString(metadataJSON),
		nullableString(logJSON),
		nullableString(depsJSON),
		task.UpdatedAt.Format(time.RFC3339Nano),
		task.ID,
	}
	if len(allowed) > 0 {
		query += ` AND status IN (` + makePlaceholders(len(allowed)) + `)`
		for _, status := range allowed {
			args = append(args, string(status))
		}
	}

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("update task: %w", err)
	}
	return res.RowsAffected()
}

// ListFilter narrows List results. Zero values match everything.
type ListFilter struct {
	Statuses []Status
	FileType string
}

// List returns tasks matching the filter ordered by creation time.
func (s *Store) List(ctx context.Context, filter ListFilter) ([]*Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks`
	var clauses []string
	var args []any

	if len(filter.Statuses) > 0 {
		clauses = append(clauses, `status IN (`+makePlaceholders(len(filter.Statuses))+`)`)
		for _, status := range filter.Statuses {
			args = append(args, string(status))
		}
	}
	if filter.FileType != "" {
		clauses = append(clauses, `file_type = ?`)
		args = append(args, filter.FileType)
	}
	if len(clauses) > 0 {
		query += ` WHERE ` + strings.Join(clauses, ` AND `)
	}
	query += ` ORDER BY created_at`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	var tasks []*Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, task)
	}
	return tasks, rows.Err()
}

// ClaimNextPending atomically takes ownership of the most urgent pending task
// by transitioning it to in_progress. Returns (nil, nil) when the queue is
// empty. The conditional update is the single-writer ownership token: two
// workers can observe the same candidate but only one claim succeeds.
func (s *Store) ClaimNextPending(ctx context.Context) (*Task, error) {
	for {
		row := s.db.QueryRowContext(ctx,
			`SELECT id FROM tasks
             WHERE status = ? AND auto_process = 1
             ORDER BY priority_rank DESC, created_at
             LIMIT 1`,
			StatusPending,
		)
		var id string
		if err := row.Scan(&id); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, nil
			}
			return nil, fmt.Errorf("next pending: %w", err)
		}

		res, err := s.db.ExecContext(ctx,
			`UPDATE tasks SET status = ?, updated_at = ? WHERE id = ? AND status = ?`,
			StatusInProgress,
			time.Now().UTC().Format(time.RFC3339Nano),
			id,
			StatusPending,
		)
		if err != nil {
			return nil, fmt.Errorf("claim task: %w", err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return nil, fmt.Errorf("claim rows affected: %w", err)
		}
		if affected == 0 {
			// Lost the race; try the next candidate.
			continue
		}
		return s.GetByID(ctx, id)
	}
}

// Remove deletes a task by identifier.
func (s *Store) Remove(ctx context.Context, id string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM tasks WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("delete task: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return affected > 0, nil
}

// Clear removes all tasks.
func (s *Store) Clear(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM tasks`)
	if err != nil {
		return 0, fmt.Errorf("clear tasks: %w", err)
	}
	return res.RowsAffected()
}

// ClearCompleted removes only completed tasks.
func (s *Store) ClearCompleted(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM tasks WHERE status = ?`, StatusCompleted)
	if err != nil {
		return 0, fmt.Errorf("clear completed: %w", err)
	}
	return res.RowsAffected()
}

// ClearFailed removes only failed tasks.
func (s *Store) ClearFailed(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM tasks WHERE status = ?`, StatusFailed)
	if err != nil {
		return 0, fmt.Errorf("clear failed: %w", err)
	}
	return res.RowsAffected()
}

// ResetStuckProcessing resets tasks left in processing states by a previous
// daemon run back to pending. CurrentStage and progress survive so completed
// groups are not re-executed.
func (s *Store) ResetStuckProcessing(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE tasks SET status = ?, updated_at = ? WHERE status IN (?, ?)`,
		StatusPending,
		time.Now().UTC().Format(time.RFC3339Nano),
		StatusInProgress,
		StatusRetrying,
	)
	if err != nil {
		return 0, fmt.Errorf("reset stuck tasks: %w", err)
	}
	return res.RowsAffected()
}

// Stats returns a count of tasks grouped by status.
func (s *Store) Stats(ctx context.Context) (map[Status]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(1) FROM tasks GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("task stats: %w", err)
	}
	defer rows.Close()

	stats := make(map[Status]int)
	for rows.Next() {
		var status Status
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		stats[status] = count
	}
	return stats, rows.Err()
}

const taskColumns = "id, upload_id, file_path, file_type, priority, status, pipeline_id, stages_json, current_stage, progress, started_at, completed_at, error_message, retry_count, max_retries, auto_process, metadata_json, processing_log_json, dependencies_json, created_at, updated_at"

func scanTask(scanner interface{ Scan(dest ...any) error }) (*Task, error) {
	var (
		id           string
		uploadID     sql.NullString
		filePath     sql.NullString
		fileType     sql.NullString
		priorityStr  string
		statusStr    string
		pipelineID   sql.NullString
		stagesRaw    sql.NullString
		currentStage sql.NullString
		progress     sql.NullFloat64
		startedRaw   sql.NullString
		completedRaw sql.NullString
		errorMessage sql.NullString
		retryCount   sql.NullInt64
		maxRetries   sql.NullInt64
		autoProcess  sql.NullInt64
		metadataRaw  sql.NullString
		logRaw       sql.NullString
		depsRaw      sql.NullString
		createdRaw   sql.NullString
		updatedRaw   sql.NullString
	)

	if err := scanner.Scan(
		&id,
		&uploadID,
		&filePath,
		&fileType,
		&priorityStr,
		&statusStr,
		&pipelineID,
		&stagesRaw,
		&currentStage,
		&progress,
		&startedRaw,
		&completedRaw,
		&errorMessage,
		&retryCount,
		&maxRetries,
		&autoProcess,
		&metadataRaw,
		&logRaw,
		&depsRaw,
		&createdRaw,
		&updatedRaw,
	); err != nil {
		return nil, err
	}

	task := &Task{
		ID:           id,
		UploadID:     uploadID.String,
		FilePath:     filePath.String,
		FileType:     fileType.String,
		Priority:     Priority(priorityStr),
		Status:       Status(statusStr),
		PipelineID:   pipelineID.String,
		CurrentStage: Stage(currentStage.String),
		Progress:     progress.Float64,
		ErrorMessage: errorMessage.String,
		RetryCount:   int(retryCount.Int64),
		MaxRetries:   int(maxRetries.Int64),
		AutoProcess:  autoProcess.Int64 != 0,
	}

	if stagesRaw.Valid && stagesRaw.String != "" {
		if err := json.Unmarshal([]byte(stagesRaw.String), &task.Stages); err != nil {
			return nil, fmt.Errorf("decode stages: %w", err)
		}
	}
	if metadataRaw.Valid && metadataRaw.String != "" {
		if err := json.Unmarshal([]byte(metadataRaw.String), &task.Metadata); err != nil {
			return nil, fmt.Errorf("decode metadata: %w", err)
		}
	}
	if logRaw.Valid && logRaw.String != "" {
		if err := json.Unmarshal([]byte(logRaw.String), &task.ProcessingLog); err != nil {
			return nil, fmt.Errorf("decode processing log: %w", err)
		}
	}
	if depsRaw.Valid && depsRaw.String != "" {
		if err := json.Unmarshal([]byte(depsRaw.String), &task.Dependencies); err != nil {
			return nil, fmt.Errorf("decode dependencies: %w", err)
		}
	}

	if created, err := parseTimeString(createdRaw.String); err == nil {
		task.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw.String); err == nil {
		task.UpdatedAt = updated
	}
	if startedRaw.Valid {
		if started, err := parseTimeString(startedRaw.String); err == nil {
			task.StartedAt = &started
		}
	}
	if completedRaw.Valid {
		if completed, err := parseTimeString(completedRaw.String); err == nil {
			task.CompletedAt = &completed
		}
	}
	return task, nil
}

func encodeTaskJSON(task *Task) (stages, metadata, log, deps string, err error) {
	if len(task.Stages) > 0 {
		raw, err := json.Marshal(task.Stages)
		if err != nil {
			return "", "", "", "", fmt.Errorf("marshal stages: %w", err)
		}
		stages = string(raw)
	}
	if len(task.Metadata) > 0 {
		raw, err := json.Marshal(task.Metadata)
		if err != nil {
			return "", "", "", "", fmt.Errorf("marshal metadata: %w", err)
		}
		metadata = string(raw)
	}
	if len(task.ProcessingLog) > 0 {
		raw, err := json.Marshal(task.ProcessingLog)
		if err != nil {
			return "", "", "", "", fmt.Errorf("marshal processing log: %w", err)
		}
		log = string(raw)
	}
	if len(task.Dependencies) > 0 {
		raw, err := json.Marshal(task.Dependencies)
		if err != nil {
			return "", "", "", "", fmt.Errorf("marshal dependencies: %w", err)
		}
		deps = string(raw)
	}
	return stages, metadata, log, deps, nil
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func nullableTime(value *time.Time) any {
	if value == nil {
		return nil
	}
	return value.UTC().Format(time.RFC3339Nano)
}

func boolToInt(value bool) int {
	if value {
		return 1
	}
	return 0
}

func parseTimeString(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02 15:04:05", value)
}

func makePlaceholders(count int) string {
	if count <= 0 {
		return ""
	}
	placeholders := make([]byte, 0, count*2)
	for i := 0; i < count; i++ {
		if i > 0 {
			placeholders = append(placeholders, ',')
		}
		placeholders = append(placeholders, '?')
	}
	return string(placeholders)
}
