package service

import (
	"mime"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// extensionTypes covers text formats that byte sniffing reports as plain text.
var extensionTypes = map[string]string{
	".txt":      "text/plain; charset=utf-8",
	".md":       "text/markdown; charset=utf-8",
	".markdown": "text/markdown; charset=utf-8",
	".csv":      "text/csv; charset=utf-8",
	".json":     "application/json",
	".yaml":     "application/yaml",
	".yml":      "application/yaml",
}

// DetectContentType infers a MIME type from the payload, letting the filename extension
// refine the result only when sniffing is inconclusive (plain text or octet-stream).
func DetectContentType(filename string, data []byte) string {
	detected := mimetype.Detect(data)
	if !detected.Is("text/plain") && !detected.Is("application/octet-stream") {
		return detected.String()
	}

	ext := strings.ToLower(filepath.Ext(filename))
	if ct, ok := extensionTypes[ext]; ok {
		return ct
	}
	if ct := mime.TypeByExtension(ext); ext != "" && ct != "" {
		return ct
	}
	return detected.String()
}
