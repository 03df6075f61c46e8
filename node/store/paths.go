package store

import (
	"fmt"
	"os"
	"path/filepath"
)

// NetworkDir returns the per-network ledger directory:
//
//	datadir/invites/<network>/
func NetworkDir(datadir string, network string) string {
	return filepath.Join(datadir, "invites", network)
}

func ensureDir(path string) error {
	if err := os.MkdirAll(path, 0o700); err != nil {
		return fmt.Errorf("mkdir %s: %w", path, err)
	}
	return nil
}
