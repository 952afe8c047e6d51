package spot

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/goccy/go-json"
)

const fileExt = ".json"

// Filename returns the canonical filename for a spot document: {id}.json
func Filename(id string) string {
	return id + fileExt
}

// IDFromFilename extracts the spot id from a document filename.
// Returns false if the name is not a spot document.
func IDFromFilename(name string) (string, bool) {
	base := filepath.Base(name)
	if !strings.HasSuffix(base, fileExt) || strings.HasPrefix(base, ".") {
		return "", false
	}
	id := strings.TrimSuffix(base, fileExt)
	if id == "" {
		return "", false
	}
	return id, true
}

// ReadSpotFile reads a spot document from disk.
//
// The document id is taken from the filename; an "id" key inside the file is
// ignored. The fields are not validated here: callers decide what to do with
// documents that fail Validate.
func ReadSpotFile(path string) (RawDocument, error) {
	id, ok := IDFromFilename(path)
	if !ok {
		return RawDocument{}, fmt.Errorf("not a spot document: %s", path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return RawDocument{}, fmt.Errorf("failed to read spot file %s: %w", path, err)
	}

	var fields Fields
	if err := json.Unmarshal(data, &fields); err != nil {
		return RawDocument{}, fmt.Errorf("failed to parse spot file %s: %w", path, err)
	}
	delete(fields, "id")

	return RawDocument{ID: id, Fields: fields}, nil
}

// WriteSpotFile writes a document to dir/{id}.json.
// The write goes through a temp file and a rename so readers never observe a
// partial document.
func WriteSpotFile(dir string, doc RawDocument) error {
	if doc.ID == "" {
		return fmt.Errorf("cannot write spot document without id")
	}
	if strings.ContainsAny(doc.ID, `/\`) {
		return fmt.Errorf("invalid spot id %q", doc.ID)
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create spots directory: %w", err)
	}

	out := make(Fields, len(doc.Fields)+1)
	for k, v := range doc.Fields {
		out[k] = v
	}
	out["id"] = doc.ID

	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal spot %s: %w", doc.ID, err)
	}

	path := filepath.Join(dir, Filename(doc.ID))
	tmp, err := os.CreateTemp(dir, ".tmp-"+doc.ID+"-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to rename temp file: %w", err)
	}

	return nil
}

// DeleteSpotFile removes dir/{id}.json. A missing file is not an error.
func DeleteSpotFile(dir, id string) error {
	err := os.Remove(filepath.Join(dir, Filename(id)))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete spot file %s: %w", id, err)
	}
	return nil
}

// ReadAllSpotFiles reads every spot document in dir.
//
// Files that cannot be read or parsed are reported to onSkip (if non-nil)
// and skipped. A missing directory is an empty collection.
func ReadAllSpotFiles(dir string, onSkip func(name string, err error)) ([]RawDocument, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return []RawDocument{}, nil
		}
		return nil, fmt.Errorf("failed to read spots directory: %w", err)
	}

	docs := make([]RawDocument, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if _, ok := IDFromFilename(entry.Name()); !ok {
			continue
		}

		doc, err := ReadSpotFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			if onSkip != nil {
				onSkip(entry.Name(), err)
			}
			continue
		}
		docs = append(docs, doc)
	}

	return docs, nil
}
