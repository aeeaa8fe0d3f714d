package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Config files larger than this are refused.
const maxFileSize = 10 << 20

var fileTypes = map[string]string{
	".yaml": "yaml",
	".yml":  "yaml",
	".json": "json",
}

// checkPath rejects paths that are empty, contain NUL, escape the working
// directory when relative, or carry an extension viper is not set up for.
// It returns the viper config type.
func checkPath(path string) (string, error) {
	switch {
	case path == "":
		return "", fmt.Errorf("config path is empty")
	case strings.ContainsRune(path, 0):
		return "", fmt.Errorf("config path %q contains NUL", path)
	case !filepath.IsAbs(path) && !filepath.IsLocal(path):
		return "", fmt.Errorf("config path %s leaves the working directory", path)
	}
	kind, ok := fileTypes[strings.ToLower(filepath.Ext(path))]
	if !ok {
		return "", fmt.Errorf("config file %s: want .yaml, .yml or .json", path)
	}
	return kind, nil
}

// readFile returns the contents of a config file and its viper type.
func readFile(path string) ([]byte, string, error) {
	kind, err := checkPath(path)
	if err != nil {
		return nil, "", err
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil, "", err
	}
	if !info.Mode().IsRegular() {
		return nil, "", fmt.Errorf("config path %s is not a regular file", path)
	}
	if info.Size() > maxFileSize {
		return nil, "", fmt.Errorf("config file %s is %d bytes, limit %d", path, info.Size(), maxFileSize)
	}
	data, err := os.ReadFile(path)
	return data, kind, err
}
