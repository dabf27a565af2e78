package utils

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// ReadSysFSFileAsInt64 reads a file from the sysfs filesystem and parses it
// as a decimal integer. Suitable for numeric entries like size or rotational.
func ReadSysFSFileAsInt64(sysFilePath string) (int64, error) {
	b, err := os.ReadFile(filepath.Clean(sysFilePath))
	if err != nil {
		return 0, err
	}
	return strconv.ParseInt(strings.TrimSpace(string(b)), 10, 64)
}

// ReadSysFSFileAsString reads a file from the sysfs filesystem and returns
// its content with surrounding whitespace removed.
func ReadSysFSFileAsString(sysFilePath string) (string, error) {
	b, err := os.ReadFile(filepath.Clean(sysFilePath))
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(b)), nil
}
