// Package seed imports parking spots from seed files.
//
// Two formats are supported: JSONL (one spot object per line) and YAML
// (a list of spots, or a mapping with a "spots" key). Every spot goes
// through the sync engine, so the remote store stays authoritative and the
// local cache is updated the same way as for any other write.
package seed

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"gopkg.in/yaml.v3"

	"github.com/teesmad/findmyspot/internal/spot"
	"github.com/teesmad/findmyspot/internal/spotsync"
)

// Format is a seed file format.
type Format string

const (
	FormatJSONL Format = "jsonl"
	FormatYAML  Format = "yaml"
)

// record is one seed entry. Numeric fields are pointers so a missing value
// is rejected rather than read as zero.
type record struct {
	ID           string   `json:"id" yaml:"id"`
	Name         string   `json:"name" yaml:"name"`
	Latitude     *float64 `json:"latitude" yaml:"latitude"`
	Longitude    *float64 `json:"longitude" yaml:"longitude"`
	Availability string   `json:"availability" yaml:"availability"`
	PricePerHour *float64 `json:"price_per_hour" yaml:"price_per_hour"`
	ImageBase64  string   `json:"image_base64,omitempty" yaml:"image_base64,omitempty"`
}

func (r record) toSpot() (spot.ParkingSpot, error) {
	switch {
	case r.Latitude == nil:
		return spot.ParkingSpot{}, fmt.Errorf("%w: %s is required", spot.ErrInvalid, spot.KeyLatitude)
	case r.Longitude == nil:
		return spot.ParkingSpot{}, fmt.Errorf("%w: %s is required", spot.ErrInvalid, spot.KeyLongitude)
	case r.PricePerHour == nil:
		return spot.ParkingSpot{}, fmt.Errorf("%w: %s is required", spot.ErrInvalid, spot.KeyPricePerHour)
	}

	s := spot.New(r.Name, *r.Latitude, *r.Longitude, r.Availability, *r.PricePerHour, r.ImageBase64)
	if r.ID != "" {
		s.ID = r.ID
	}
	if err := s.Validate(); err != nil {
		return spot.ParkingSpot{}, err
	}
	return s, nil
}

// Entry is a parsed seed entry. Err is set when the entry is unusable.
type Entry struct {
	Line int
	Spot spot.ParkingSpot
	Err  error
}

// Options contains configuration for an import.
type Options struct {
	Path   string // Input seed file
	Format Format // Empty means detect from the file extension
	DryRun bool   // Parse and validate without writing
}

// Result contains statistics about an import.
type Result struct {
	Parsed   int
	Imported int
	Skipped  int
	Errors   []string
	Duration time.Duration
}

// DetectFormat picks a format from a file extension.
func DetectFormat(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".jsonl", ".ndjson":
		return FormatJSONL, nil
	case ".yaml", ".yml":
		return FormatYAML, nil
	default:
		return "", fmt.Errorf("unknown seed format for %s (want .jsonl, .ndjson, .yaml or .yml)", path)
	}
}

// FromJSONL parses one spot per line. Blank lines are ignored. A line that
// does not decode aborts the parse; a line with missing or invalid spot
// fields is returned as an Entry with Err set.
func FromJSONL(r io.Reader) ([]Entry, error) {
	var entries []Entry

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		var rec record
		if err := json.Unmarshal(line, &rec); err != nil {
			return nil, fmt.Errorf("invalid JSON at line %d: %w", lineNum, err)
		}
		s, err := rec.toSpot()
		entries = append(entries, Entry{Line: lineNum, Spot: s, Err: err})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read JSONL: %w", err)
	}

	return entries, nil
}

// FromYAML parses a YAML list of spots, or a mapping with a "spots" list.
func FromYAML(r io.Reader) ([]Entry, error) {
	var root yaml.Node
	if err := yaml.NewDecoder(r).Decode(&root); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("invalid YAML: %w", err)
	}

	list := &root
	if list.Kind == yaml.DocumentNode && len(list.Content) > 0 {
		list = list.Content[0]
	}
	if list.Kind == yaml.MappingNode {
		var wrapped *yaml.Node
		for i := 0; i+1 < len(list.Content); i += 2 {
			if list.Content[i].Value == "spots" {
				wrapped = list.Content[i+1]
			}
		}
		if wrapped == nil {
			return nil, fmt.Errorf("invalid YAML: expected a list of spots or a \"spots\" key")
		}
		list = wrapped
	}
	if list.Kind != yaml.SequenceNode {
		return nil, fmt.Errorf("invalid YAML: expected a list of spots")
	}

	entries := make([]Entry, 0, len(list.Content))
	for _, item := range list.Content {
		var rec record
		if err := item.Decode(&rec); err != nil {
			entries = append(entries, Entry{Line: item.Line, Err: fmt.Errorf("%w: %v", spot.ErrInvalid, err)})
			continue
		}
		s, err := rec.toSpot()
		entries = append(entries, Entry{Line: item.Line, Spot: s, Err: err})
	}
	return entries, nil
}

// ReadFile parses a seed file in the given format, or the format implied by
// its extension when format is empty.
func ReadFile(path string, format Format) ([]Entry, error) {
	if format == "" {
		var err error
		if format, err = DetectFormat(path); err != nil {
			return nil, err
		}
	}

	// #nosec G304 - controlled path from CLI
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open seed file: %w", err)
	}
	defer file.Close()

	switch format {
	case FormatJSONL:
		return FromJSONL(file)
	case FormatYAML:
		return FromYAML(file)
	default:
		return nil, fmt.Errorf("unsupported seed format %q", format)
	}
}

// Import reads a seed file and adds every valid spot through the engine.
//
// Invalid entries and failed writes are recorded in Result.Errors and do
// not stop the import. A cancelled ctx does.
func Import(ctx context.Context, syncer spotsync.Syncer, opts Options) (*Result, error) {
	start := time.Now()

	entries, err := ReadFile(opts.Path, opts.Format)
	if err != nil {
		return nil, fmt.Errorf("failed to parse seed file: %w", err)
	}

	result := &Result{Parsed: len(entries)}
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		if e.Err != nil {
			result.Skipped++
			result.Errors = append(result.Errors, fmt.Sprintf("line %d: %v", e.Line, e.Err))
			continue
		}
		if opts.DryRun {
			result.Imported++
			continue
		}

		if err := syncer.Add(ctx, e.Spot); err != nil {
			result.Skipped++
			result.Errors = append(result.Errors, fmt.Sprintf("line %d: failed to add %s: %v", e.Line, e.Spot.ID, err))
			continue
		}
		result.Imported++
	}

	result.Duration = time.Since(start)
	return result, nil
}

// WriteJSONL writes spots one per line, in the format FromJSONL reads.
func WriteJSONL(w io.Writer, spots []spot.ParkingSpot) error {
	enc := json.NewEncoder(w)
	for _, s := range spots {
		if err := enc.Encode(s); err != nil {
			return fmt.Errorf("failed to encode spot %s: %w", s.ID, err)
		}
	}
	return nil
}
