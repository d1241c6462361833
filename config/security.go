package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Limits applied to pipeline files and environment overrides.
const (
	maxFileSize  = 1 << 20 // pipeline files are small; anything bigger is a mistake
	maxNesting   = 64      // deepest seam chain plus surrounding objects
	maxEnvLength = 4096
	maxPathLen   = 4096
)

var pipelineExtensions = map[string]bool{".json": true, ".yaml": true, ".yml": true}

// checkPipelinePath rejects paths with an unexpected extension and relative
// paths that climb out of the working directory.
func checkPipelinePath(path string) error {
	switch {
	case path == "":
		return fmt.Errorf("empty path")
	case len(path) > maxPathLen:
		return fmt.Errorf("path longer than %d bytes", maxPathLen)
	case !pipelineExtensions[strings.ToLower(filepath.Ext(path))]:
		return fmt.Errorf("%s: expected a .json, .yaml or .yml file", path)
	}
	if filepath.IsAbs(path) {
		return nil
	}

	clean := filepath.Clean(path)
	if clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return fmt.Errorf("%s: resolves outside the working directory", path)
	}
	return nil
}

// readPipelineFile reads a regular file of bounded size after checking its
// path.
func readPipelineFile(path string) ([]byte, error) {
	if err := checkPipelinePath(path); err != nil {
		return nil, err
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if !info.Mode().IsRegular() {
		return nil, fmt.Errorf("%s: not a regular file", path)
	}
	if info.Size() > maxFileSize {
		return nil, fmt.Errorf("%s: %d bytes exceeds the %d byte limit", path, info.Size(), maxFileSize)
	}
	return os.ReadFile(path)
}

// checkEnvValue bounds override values and rejects embedded NUL bytes.
func checkEnvValue(name, value string) error {
	if len(value) > maxEnvLength {
		return fmt.Errorf("%s: value longer than %d bytes", name, maxEnvLength)
	}
	if strings.ContainsRune(value, 0) {
		return fmt.Errorf("%s: value contains a NUL byte", name)
	}
	return nil
}

// checkNesting walks a decoded document and fails once it is nested deeper
// than maxNesting. Applies to JSON and YAML alike.
func checkNesting(v any) error {
	return walkNesting(v, 0)
}

func walkNesting(v any, depth int) error {
	if depth > maxNesting {
		return fmt.Errorf("document nested deeper than %d levels", maxNesting)
	}
	switch t := v.(type) {
	case map[string]any:
		for _, child := range t {
			if err := walkNesting(child, depth+1); err != nil {
				return err
			}
		}
	case []any:
		for _, child := range t {
			if err := walkNesting(child, depth+1); err != nil {
				return err
			}
		}
	}
	return nil
}
