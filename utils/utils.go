// Package utils holds small filesystem and clock helpers.
package utils

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// NowAsUnixMilli returns the wall clock in ms, as stored in commit records.
func NowAsUnixMilli() uint64 {
	return uint64(time.Now().UnixMilli())
}

// DataFile returns the path of name under dir, creating dir if needed.
func DataFile(dir, name string) (string, error) {
	if dir == "" {
		return "", fmt.Errorf("no data directory for %s", name)
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("creating data directory: %w", err)
	}
	return filepath.Join(dir, name), nil
}
