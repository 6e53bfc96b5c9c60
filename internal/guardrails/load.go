package guardrails

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// LoadConfig reads validation rules from a YAML or JSON file. JSON is
// accepted as YAML, so the extension does not matter. Unknown keys are
// rejected so a misspelt rule is not silently ignored. Fields missing from
// the file keep their DefaultConfig values.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return cfg, fmt.Errorf("decode %s: %w", path, err)
	}

	cfg.BlockedPatterns = compact(cfg.BlockedPatterns)
	cfg.BlockedRegex = compact(cfg.BlockedRegex)

	if _, err := New(cfg); err != nil {
		return cfg, fmt.Errorf("rules in %s: %w", path, err)
	}
	return cfg, nil
}

// compact drops blank entries left by YAML lists like "- ".
func compact(items []string) []string {
	var out []string
	for _, item := range items {
		if strings.TrimSpace(item) != "" {
			out = append(out, item)
		}
	}
	return out
}
