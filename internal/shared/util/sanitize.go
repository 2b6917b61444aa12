package util

import (
	"errors"
	"strings"
)

var errInvalidFileName = errors.New("invalid file name")

// SanitizeFileName strips path separators from an uploaded file name and
// rejects traversal attempts.
func SanitizeFileName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" || strings.Contains(name, "..") {
		return "", errInvalidFileName
	}
	return strings.NewReplacer("/", "_", "\\", "_").Replace(name), nil
}
