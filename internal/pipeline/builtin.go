package pipeline

import (
	"conveyor/internal/config"
	"conveyor/internal/queue"
)

// DefaultPipelineID names the fallback pipeline every registry must carry.
const DefaultPipelineID = "default"

// thumbnailTypes lists the file types worth rendering a thumbnail for.
var thumbnailTypes = []string{"pdf", "image", "video", "presentation"}

// Builtins returns the stock pipeline set wired to the builtin processors,
// with timeout and retry policy drawn from the configuration.
func Builtins(cfg *config.Config) []*Pipeline {
	base := func(id string) *Pipeline {
		return &Pipeline{
			ID:           id,
			Processors:   make(map[queue.Stage]string),
			Conditions:   make(map[queue.Stage]Condition),
			Timeout:      cfg.PipelineTimeout(),
			StageTimeout: cfg.StageTimeout(),
			RetryCount:   cfg.Retry.MaxRetries,
			Priority:     queue.PriorityNormal,
			Enabled:      true,
		}
	}

	standard := map[queue.Stage]string{
		queue.StageValidated:           "file_validator",
		queue.StageScanned:             "virus_scanner",
		queue.StageMetadataExtracted:   "metadata_extractor",
		queue.StageContentAnalyzed:     "content_analyzer",
		queue.StageCategorized:         "categorizer",
		queue.StageIndexed:             "search_indexer",
		queue.StageThumbnailGenerated:  "image_thumbnail",
		queue.StageOCRProcessed:        "pdf_ocr",
		queue.StageTranscriptExtracted: "transcript_extractor",
		queue.StageAIAnalyzed:          "ai_analyzer",
		queue.StageIntegrated:          "integrator",
	}
	bind := func(p *Pipeline, stages ...queue.Stage) {
		p.Stages = stages
		for _, stage := range stages {
			p.Processors[stage] = standard[stage]
		}
	}

	fallback := base(DefaultPipelineID)
	bind(fallback,
		queue.StageValidated,
		queue.StageScanned,
		queue.StageMetadataExtracted,
		queue.StageContentAnalyzed,
		queue.StageCategorized,
		queue.StageThumbnailGenerated,
		queue.StageIndexed,
	)
	fallback.Conditions[queue.StageThumbnailGenerated] = Condition{FileTypes: thumbnailTypes}

	document := base("document")
	bind(document,
		queue.StageValidated,
		queue.StageScanned,
		queue.StageMetadataExtracted,
		queue.StageOCRProcessed,
		queue.StageThumbnailGenerated,
		queue.StageContentAnalyzed,
		queue.StageCategorized,
		queue.StageIndexed,
	)
	// OCR and thumbnail rendering are independent per-page work; run them
	// concurrently behind one join barrier.
	document.ParallelGroups = [][]queue.Stage{
		{queue.StageOCRProcessed, queue.StageThumbnailGenerated},
	}
	document.Conditions[queue.StageThumbnailGenerated] = Condition{FileTypes: thumbnailTypes}

	image := base("image")
	bind(image,
		queue.StageValidated,
		queue.StageScanned,
		queue.StageMetadataExtracted,
		queue.StageThumbnailGenerated,
		queue.StageAIAnalyzed,
		queue.StageCategorized,
		queue.StageIndexed,
	)

	video := base("video")
	bind(video,
		queue.StageValidated,
		queue.StageScanned,
		queue.StageMetadataExtracted,
		queue.StageThumbnailGenerated,
		queue.StageTranscriptExtracted,
		queue.StageAIAnalyzed,
		queue.StageIndexed,
	)
	video.ParallelGroups = [][]queue.Stage{
		{queue.StageThumbnailGenerated, queue.StageTranscriptExtracted},
	}

	audio := base("audio")
	bind(audio,
		queue.StageValidated,
		queue.StageScanned,
		queue.StageMetadataExtracted,
		queue.StageTranscriptExtracted,
		queue.StageAIAnalyzed,
		queue.StageIndexed,
	)

	return []*Pipeline{fallback, document, image, video, audio}
}

// BuiltinMappings routes file types onto the stock pipelines. Unlisted types
// (code, archive, other) fall through to the default pipeline.
func BuiltinMappings() map[string]string {
	return map[string]string{
		"pdf":          "document",
		"document":     "document",
		"spreadsheet":  "document",
		"presentation": "document",
		"image":        "image",
		"video":        "video",
		"audio":        "audio",
	}
}

// NewDefaultRegistry builds a registry loaded with the builtin pipelines and
// file-type mappings.
func NewDefaultRegistry(cfg *config.Config) (*Registry, error) {
	registry := NewRegistry(DefaultPipelineID)
	for _, p := range Builtins(cfg) {
		if err := registry.Register(p); err != nil {
			return nil, err
		}
	}
	for fileType, id := range BuiltinMappings() {
		registry.MapFileType(fileType, id)
	}
	return registry, nil
}
