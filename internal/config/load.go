// Package config loads the JSON configuration files: network endpoints,
// command opcodes and planning tuning. Files may carry comments and
// trailing commas; they are standardized with hujson before decoding.
package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/tailscale/hujson"

	"github.com/banshee-data/tmsnav/internal/security"
)

const maxFileSize = 1 * 1024 * 1024 // 1MB

// readJSON validates path, reads it and decodes the standardized JSON into v.
func readJSON(path string, v any) error {
	data, err := security.ReadLimitedFile(path, []string{".json"}, maxFileSize)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return decode(data, v)
}

func decode(data []byte, v any) error {
	std, err := hujson.Standardize(data)
	if err != nil {
		return fmt.Errorf("failed to parse config JSON: %w", err)
	}
	if err := json.Unmarshal(std, v); err != nil {
		return fmt.Errorf("failed to parse config JSON: %w", err)
	}
	return nil
}

// findDefault looks for a repository file from the working directory and
// its parents, so tests in nested packages can load the shipped defaults.
func findDefault(rel string) (string, error) {
	candidates := []string{
		rel,
		"../" + rel,
		"../../" + rel, // from internal/config/
		"../../../" + rel,
	}
	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}
	return "", fmt.Errorf("cannot find %s - run from repository root", rel)
}
