package pipeline

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/ppiankov/vitals/internal/model"
)

// ErrArtifactMissing is wrapped when a stage's input file does not exist
var ErrArtifactMissing = errors.New("artifact not found")

// Artifacts locates the files passed between stages
type Artifacts struct {
	Dir        string
	RawBlob    string
	Structured string
}

// NewArtifacts resolves artifact names from configuration, filling defaults
func NewArtifacts(cfg model.ArtifactsConfig) Artifacts {
	def := model.DefaultConfig().Artifacts
	a := Artifacts{Dir: cfg.Dir, RawBlob: cfg.RawBlob, Structured: cfg.Structured}
	if a.Dir == "" {
		a.Dir = def.Dir
	}
	if a.RawBlob == "" {
		a.RawBlob = def.RawBlob
	}
	if a.Structured == "" {
		a.Structured = def.Structured
	}
	return a
}

// RawBlobPath is where Collect writes the cleaned page text
func (a Artifacts) RawBlobPath() string { return filepath.Join(a.Dir, a.RawBlob) }

// StructuredPath is where Structure writes the structured document
func (a Artifacts) StructuredPath() string { return filepath.Join(a.Dir, a.Structured) }

// WriteRawBlob stores the cleaned text as UTF-8
func (a Artifacts) WriteRawBlob(text string) error {
	return writeFileAtomic(a.RawBlobPath(), []byte(text))
}

// ReadRawBlob loads the cleaned text written by Collect
func (a Artifacts) ReadRawBlob() (string, error) {
	data, err := readArtifact(a.RawBlobPath(), "collect")
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// WriteStructured stores doc pretty-printed with a 4-space indent, keeping document order
func (a Artifacts) WriteStructured(doc *model.Document) error {
	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode structured document: %w", err)
	}
	var out bytes.Buffer
	if err := json.Indent(&out, raw, "", "    "); err != nil {
		return fmt.Errorf("indent structured document: %w", err)
	}
	out.WriteByte('\n')
	return writeFileAtomic(a.StructuredPath(), out.Bytes())
}

// ReadStructured loads the structured document written by Structure.
// A file that is not a JSON object is a *model.SchemaViolationError.
func (a Artifacts) ReadStructured() (*model.Document, error) {
	data, err := readArtifact(a.StructuredPath(), "structure")
	if err != nil {
		return nil, err
	}
	return model.ParseDocument(data)
}

func readArtifact(path, producer string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s (run %q first)", ErrArtifactMissing, path, producer)
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return data, nil
}

// writeFileAtomic writes data to a temp file in the target directory and renames it into place
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("close %s: %w", path, err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("chmod %s: %w", path, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("rename %s: %w", path, err)
	}
	return nil
}
