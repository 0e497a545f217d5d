package config

import (
	"os"
	"path/filepath"
	"strings"
)

// ParsePath expands a leading "~/" and makes the path absolute. An empty path
// stays empty so optional file flags can be left unset.
func ParsePath(path string) (string, error) {
	if path == "" {
		return "", nil
	}

	if strings.HasPrefix(path, "~/") {
		dirname, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		path = filepath.Join(dirname, path[2:])
	}

	return filepath.Abs(path)
}
