package queue

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"conveyor/internal/services"
)

//go:embed task_schema.json
var taskSchemaJSON string

var taskSchema = func() *jsonschema.Schema {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("task_schema.json", strings.NewReader(taskSchemaJSON)); err != nil {
		panic(fmt.Sprintf("add task schema: %v", err))
	}
	return compiler.MustCompile("task_schema.json")
}()

// TaskDocument is the persisted JSON shape of one task. Field names and
// nullability are part of the export contract; import accepts exactly this
// shape and reconstructs enum-typed fields by name.
type TaskDocument struct {
	ID            string         `json:"id"`
	UploadID      string         `json:"upload_id"`
	FilePath      string         `json:"file_path"`
	FileType      string         `json:"file_type"`
	Priority      string         `json:"priority"`
	Status        string         `json:"status"`
	Stages        []string       `json:"stages"`
	CurrentStage  *string        `json:"current_stage"`
	Progress      float64        `json:"progress"`
	StartedAt     *time.Time     `json:"started_at"`
	CompletedAt   *time.Time     `json:"completed_at"`
	ErrorMessage  *string        `json:"error_message"`
	RetryCount    int            `json:"retry_count"`
	MaxRetries    int            `json:"max_retries"`
	Metadata      map[string]any `json:"metadata"`
	ProcessingLog []string       `json:"processing_log"`
	Dependencies  []string       `json:"dependencies"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
}

// ExportTask converts a task into its document form.
func ExportTask(task *Task) TaskDocument {
	doc := TaskDocument{
		ID:            task.ID,
		UploadID:      task.UploadID,
		FilePath:      task.FilePath,
		FileType:      task.FileType,
		Priority:      string(task.Priority),
		Status:        string(task.Status),
		Stages:        make([]string, 0, len(task.Stages)),
		Progress:      task.Progress,
		StartedAt:     task.StartedAt,
		CompletedAt:   task.CompletedAt,
		RetryCount:    task.RetryCount,
		MaxRetries:    task.MaxRetries,
		Metadata:      task.Metadata,
		ProcessingLog: task.ProcessingLog,
		Dependencies:  task.Dependencies,
		CreatedAt:     task.CreatedAt,
		UpdatedAt:     task.UpdatedAt,
	}
	for _, stage := range task.Stages {
		doc.Stages = append(doc.Stages, string(stage))
	}
	if task.CurrentStage != "" {
		value := string(task.CurrentStage)
		doc.CurrentStage = &value
	}
	if task.ErrorMessage != "" {
		value := task.ErrorMessage
		doc.ErrorMessage = &value
	}
	if doc.Metadata == nil {
		doc.Metadata = map[string]any{}
	}
	if doc.ProcessingLog == nil {
		doc.ProcessingLog = []string{}
	}
	if doc.Dependencies == nil {
		doc.Dependencies = []string{}
	}
	return doc
}

// Export writes the tasks as a JSON array of task documents.
func Export(w io.Writer, tasks []*Task) error {
	docs := make([]TaskDocument, 0, len(tasks))
	for _, task := range tasks {
		docs = append(docs, ExportTask(task))
	}
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(docs); err != nil {
		return fmt.Errorf("encode tasks: %w", err)
	}
	return nil
}

// Import reads a JSON array of task documents, validates each against the
// export schema, and reconstructs tasks with enum fields resolved by name.
// The document format carries no pipeline binding or scheduling flag, so
// reconstructed tasks have an empty PipelineID and AutoProcess off; the
// caller decides both before storing them.
func Import(r io.Reader) ([]*Task, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read import: %w", err)
	}

	var generic []any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return nil, services.Wrap(services.ErrValidation, "", "import", "document is not a JSON array", err)
	}
	for i, element := range generic {
		if err := taskSchema.Validate(element); err != nil {
			return nil, services.Wrap(services.ErrValidation, "", "import",
				fmt.Sprintf("task document %d does not match schema", i), err)
		}
	}

	var docs []TaskDocument
	if err := json.Unmarshal(raw, &docs); err != nil {
		return nil, services.Wrap(services.ErrValidation, "", "import", "decode task documents", err)
	}

	tasks := make([]*Task, 0, len(docs))
	for i, doc := range docs {
		task, err := importTask(doc)
		if err != nil {
			return nil, services.Wrap(services.ErrValidation, "", "import",
				fmt.Sprintf("task document %d", i), err)
		}
		tasks = append(tasks, task)
	}
	return tasks, nil
}

func importTask(doc TaskDocument) (*Task, error) {
	priority, ok := ParsePriority(doc.Priority)
	if !ok {
		return nil, fmt.Errorf("unknown priority %q", doc.Priority)
	}
	status, ok := ParseStatus(doc.Status)
	if !ok {
		return nil, fmt.Errorf("unknown status %q", doc.Status)
	}

	task := &Task{
		ID:            doc.ID,
		UploadID:      doc.UploadID,
		FilePath:      doc.FilePath,
		FileType:      doc.FileType,
		Priority:      priority,
		Status:        status,
		Progress:      doc.Progress,
		StartedAt:     doc.StartedAt,
		CompletedAt:   doc.CompletedAt,
		RetryCount:    doc.RetryCount,
		MaxRetries:    doc.MaxRetries,
		Metadata:      doc.Metadata,
		ProcessingLog: doc.ProcessingLog,
		Dependencies:  doc.Dependencies,
		CreatedAt:     doc.CreatedAt,
		UpdatedAt:     doc.UpdatedAt,
	}
	for _, raw := range doc.Stages {
		stage, ok := ParseStage(raw)
		if !ok {
			return nil, fmt.Errorf("unknown stage %q", raw)
		}
		task.Stages = append(task.Stages, stage)
	}
	if doc.CurrentStage != nil && *doc.CurrentStage != "" {
		stage, ok := ParseStage(*doc.CurrentStage)
		if !ok {
			return nil, fmt.Errorf("unknown current stage %q", *doc.CurrentStage)
		}
		task.CurrentStage = stage
	}
	if doc.ErrorMessage != nil {
		task.ErrorMessage = *doc.ErrorMessage
	}
	if task.RetryCount > task.MaxRetries {
		return nil, fmt.Errorf("retry_count %d exceeds max_retries %d", task.RetryCount, task.MaxRetries)
	}
	return task, nil
}
