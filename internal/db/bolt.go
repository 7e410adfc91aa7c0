package db

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"go.etcd.io/bbolt"
)

// NewBolt opens the on-device bbolt file used by the durable sync manager.
// The one-second timeout avoids hanging forever when another process holds
// the file lock.
func NewBolt(path string) (*bbolt.DB, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("empty bolt path")
	}

	boltDB, err := bbolt.Open(filepath.Clean(path), 0o600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bolt db: %w", err)
	}

	return boltDB, nil
}
