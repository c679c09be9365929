// Package output emits generated artifacts to the output directory.
// Write failures are reported to the caller as ordinary errors and are
// expected to be surfaced as warnings, never aborting a generation
// outcome that has already been computed.
package output

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/mfatir-y/mutimodal-ai-agent/internal/codegen"
)

// Writer saves artifacts under a fixed output directory.
type Writer struct {
	dir string
}

// NewWriter creates a writer rooted at dir.
func NewWriter(dir string) *Writer {
	return &Writer{dir: dir}
}

// Dir returns the configured output directory.
func (w *Writer) Dir() string { return w.dir }

// ValidateFilename checks that name is usable as a single path
// segment: non-empty, no separators, no traversal, no control
// characters. The parser accepts whatever filename the model produced;
// this is the independent check before touching the filesystem.
func ValidateFilename(name string) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("empty filename")
	}
	if strings.ContainsAny(name, "/\\") {
		return fmt.Errorf("filename %q contains a path separator", name)
	}
	if name == "." || name == ".." {
		return fmt.Errorf("filename %q is a path traversal", name)
	}
	for _, r := range name {
		if r < 0x20 || r == 0x7f {
			return fmt.Errorf("filename %q contains a control character", name)
		}
	}
	return nil
}

// Write saves an artifact as <dir>/<filename>, with the description as
// a leading docstring block, and returns the path written.
func (w *Writer) Write(artifact *codegen.Artifact) (string, error) {
	if err := ValidateFilename(artifact.Filename); err != nil {
		return "", err
	}

	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return "", fmt.Errorf("create output directory: %w", err)
	}

	path := filepath.Join(w.dir, artifact.Filename)
	content := fmt.Sprintf("'''\n%s\n'''\n%s", artifact.Description, artifact.Code)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return "", fmt.Errorf("write artifact: %w", err)
	}
	return path, nil
}
