package ledger

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/rohankatakam/gitcredit/internal/errors"
	"github.com/rohankatakam/gitcredit/internal/models"
)

// Output formats for the contributor ledger
const (
	FormatJSON = "json"
	FormatYAML = "yaml"
)

// FormatForPath picks the format from a file extension, falling back to def
func FormatForPath(path, def string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML
	case ".json":
		return FormatJSON
	}
	return def
}

// EncodeContributors writes contributors to w in the given format. A nil
// slice is written as an empty list.
func EncodeContributors(w io.Writer, format string, contributors []models.Contributor) error {
	if contributors == nil {
		contributors = []models.Contributor{}
	}

	switch format {
	case FormatJSON, "":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(contributors)
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(contributors); err != nil {
			return err
		}
		return enc.Close()
	default:
		return errors.ConfigErrorf("unsupported contributor ledger format %q", format)
	}
}

// WriteContributors atomically replaces the contributor ledger at path
func WriteContributors(path, format string, contributors []models.Contributor) error {
	var buf bytes.Buffer
	if err := EncodeContributors(&buf, format, contributors); err != nil {
		return err
	}
	if err := SafeWrite(path, buf.Bytes(), 0644); err != nil {
		return errors.FileSystemErrorf(err, "failed to write contributor ledger %s", path)
	}
	return nil
}

// DecodeContributors parses a contributor ledger written by
// EncodeContributors.
func DecodeContributors(data []byte, format string) ([]models.Contributor, error) {
	var contributors []models.Contributor
	var err error
	switch format {
	case FormatYAML:
		err = yaml.Unmarshal(data, &contributors)
	default:
		err = json.Unmarshal(data, &contributors)
	}
	if err != nil {
		return nil, fmt.Errorf("decode contributors: %w", err)
	}
	return contributors, nil
}
