// Package seed bulk-loads files into a tree from a YAML or JSON manifest and
// exports a tree back into one.
package seed

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"gopkg.in/yaml.v3"

	"github.com/brettbedarf/mimic"
	"github.com/brettbedarf/mimic/internal/util"
)

type Format string

const (
	FormatYAML Format = "yaml"
	FormatJSON Format = "json"
)

// FormatOf picks the manifest format from a file extension
func FormatOf(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".json":
		return FormatJSON, nil
	default:
		return "", fmt.Errorf("unknown manifest file extension: %s", path)
	}
}

// Parse decodes a manifest. Source entries are read relative to baseDir; an
// empty baseDir rejects them, for manifests from untrusted callers.
func Parse(data []byte, format Format, baseDir string) ([]mimic.FileRecord, error) {
	var dto ManifestDTO
	switch format {
	case FormatYAML:
		if err := yaml.Unmarshal(data, &dto); err != nil {
			return nil, fmt.Errorf("failed to unmarshal manifest: %w", err)
		}
	case FormatJSON:
		if err := json.Unmarshal(data, &dto); err != nil {
			return nil, fmt.Errorf("failed to unmarshal manifest: %w", err)
		}
	default:
		return nil, fmt.Errorf("unknown manifest format %q", format)
	}

	records := make([]mimic.FileRecord, 0, len(dto.Files))
	for i, f := range dto.Files {
		rec, err := convertFileDTO(f, baseDir)
		if err != nil {
			return nil, fmt.Errorf("manifest entry %d: %w", i, err)
		}
		records = append(records, rec)
	}
	return records, nil
}

func convertFileDTO(dto FileDTO, baseDir string) (mimic.FileRecord, error) {
	if mimic.IsRoot(dto.Path) {
		return mimic.FileRecord{}, fmt.Errorf("missing path")
	}
	set := 0
	for _, p := range []*string{dto.Contents, dto.Base64, dto.Source} {
		if p != nil {
			set++
		}
	}
	if set > 1 {
		return mimic.FileRecord{}, fmt.Errorf("%q: only one of contents, base64 and source may be set", dto.Path)
	}

	var contents []byte
	switch {
	case dto.Contents != nil:
		contents = []byte(*dto.Contents)
	case dto.Base64 != nil:
		b, err := base64.StdEncoding.DecodeString(*dto.Base64)
		if err != nil {
			return mimic.FileRecord{}, fmt.Errorf("%q: invalid base64: %w", dto.Path, err)
		}
		contents = b
	case dto.Source != nil:
		if baseDir == "" {
			return mimic.FileRecord{}, fmt.Errorf("%q: source entries are not allowed here", dto.Path)
		}
		src := *dto.Source
		if !filepath.IsAbs(src) {
			src = filepath.Join(baseDir, src)
		}
		b, err := os.ReadFile(src)
		if err != nil {
			return mimic.FileRecord{}, fmt.Errorf("%q: failed to read source: %w", dto.Path, err)
		}
		contents = b
	default:
		contents = []byte{}
	}

	return mimic.FileRecord{
		Path:         mimic.CleanPath(dto.Path),
		Contents:     contents,
		LastModified: util.ValueOr(dto.Mtime, time.Time{}),
	}, nil
}

// LoadFile reads and parses the manifest at path
func LoadFile(path string) ([]mimic.FileRecord, error) {
	format, err := FormatOf(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data, format, filepath.Dir(path))
}

// Load puts every file of the manifest at path into t and returns how many
// were stored.
func Load(t mimic.Tree, path string) (int, error) {
	records, err := LoadFile(path)
	if err != nil {
		return 0, err
	}
	if err := mimic.PutFiles(t, records); err != nil {
		return 0, fmt.Errorf("failed to store seed files: %w", err)
	}
	logger := util.GetLogger("seed")
	logger.Info().Str("manifest", path).Int("files", len(records)).Msg("Seeded tree")
	return len(records), nil
}

// Export writes every file of t under prefix as a manifest. Valid UTF-8 is
// stored inline, anything else as base64.
func Export(t mimic.Tree, prefix string, w io.Writer, format Format) error {
	files := t.Files(prefix)
	dto := ManifestDTO{Files: make([]FileDTO, 0, len(files))}
	for _, f := range files {
		entry := FileDTO{Path: f.Path}
		if utf8.Valid(f.Contents) {
			entry.Contents = util.Pointer(string(f.Contents))
		} else {
			entry.Base64 = util.Pointer(base64.StdEncoding.EncodeToString(f.Contents))
		}
		if !f.LastModified.IsZero() {
			entry.Mtime = util.Pointer(f.LastModified.UTC())
		}
		dto.Files = append(dto.Files, entry)
	}

	switch format {
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(dto); err != nil {
			return fmt.Errorf("failed to encode manifest: %w", err)
		}
		return enc.Close()
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(dto); err != nil {
			return fmt.Errorf("failed to encode manifest: %w", err)
		}
		return nil
	default:
		return fmt.Errorf("unknown manifest format %q", format)
	}
}
