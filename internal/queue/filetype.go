package queue

import (
	"path/filepath"
	"strings"
)

var extensionTypes = map[string]string{
	".pdf":  "pdf",
	".png":  "image",
	".jpg":  "image",
	".jpeg": "image",
	".gif":  "image",
	".webp": "image",
	".bmp":  "image",
	".tiff": "image",
	".mp4":  "video",
	".mkv":  "video",
	".mov":  "video",
	".avi":  "video",
	".webm": "video",
	".mp3":  "audio",
	".wav":  "audio",
	".flac": "audio",
	".m4a":  "audio",
	".ogg":  "audio",
	".doc":  "document",
	".docx": "document",
	".txt":  "document",
	".md":   "document",
	".rtf":  "document",
	".odt":  "document",
	".ppt":  "presentation",
	".pptx": "presentation",
	".odp":  "presentation",
	".xls":  "spreadsheet",
	".xlsx": "spreadsheet",
	".csv":  "spreadsheet",
	".go":   "code",
	".py":   "code",
	".js":   "code",
	".ts":   "code",
	".java": "code",
	".c":    "code",
	".cpp":  "code",
	".rs":   "code",
	".rb":   "code",
	".sh":   "code",
	".zip":  "archive",
	".tar":  "archive",
	".gz":   "archive",
	".7z":   "archive",
}

// DetectFileType maps a file path to the coarse type used for pipeline
// selection. Unknown extensions report "other".
func DetectFileType(path string) string {
	ext := strings.ToLower(filepath.Ext(strings.TrimSpace(path)))
	if fileType, ok := extensionTypes[ext]; ok {
		return fileType
	}
	return "other"
}
