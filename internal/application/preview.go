package application

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/reviewdeck/reviewdeck/internal/domain/model"
)

// FilePreview is the preview metadata for a file body: its language and, for
// YAML, whether the document parses. Rendering happens in the UI shell; this
// only classifies and validates.
type FilePreview struct {
	Path      string
	Language  model.FileLanguage
	Content   string
	Valid     bool
	ParseErr  string
	DocCount  int // Number of YAML documents in a multi-document file.
	LineCount int
}

// BuildFilePreview classifies content and, for YAML files, checks
// well-formedness across all documents in the stream.
func BuildFilePreview(filePath, content string) FilePreview {
	preview := FilePreview{
		Path:      filePath,
		Language:  model.DetectFileLanguage(filePath),
		Content:   content,
		Valid:     true,
		LineCount: strings.Count(content, "\n") + 1,
	}
	if content == "" {
		preview.LineCount = 0
	}

	if preview.Language != model.LanguageYAML {
		return preview
	}

	docs, err := countYAMLDocuments(content)
	if err != nil {
		preview.Valid = false
		preview.ParseErr = err.Error()
		return preview
	}
	preview.DocCount = docs
	return preview
}

// countYAMLDocuments decodes every document in a YAML stream, returning how
// many there are or the first parse error.
func countYAMLDocuments(content string) (int, error) {
	decoder := yaml.NewDecoder(strings.NewReader(content))
	count := 0
	for {
		var doc any
		err := decoder.Decode(&doc)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return count, nil
			}
			return count, fmt.Errorf("yaml document %d: %w", count+1, err)
		}
		count++
	}
}
