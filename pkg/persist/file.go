package persist

import (
	"fmt"
	"os"
	"path/filepath"
)

// Permissions of persisted files and the directories created for them.
const (
	filePerm = 0o600
	dirPerm  = 0o750
)

// SaveFile encodes state into path, creating missing parent directories.
// The bytes go to a temporary sibling that is synced and renamed over path,
// so readers see either the previous content or the new one in full.
func SaveFile(path string, codec Codec, state any) error {
	dir := filepath.Dir(path)

	err := os.MkdirAll(dir, dirPerm)
	if err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("create state file: %w", err)
	}

	tmpPath := tmp.Name()
	committed := false

	defer func() {
		if !committed {
			_ = tmp.Close()
			_ = os.Remove(tmpPath)
		}
	}()

	err = codec.Encode(tmp, state)
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}

	err = tmp.Sync()
	if err != nil {
		return fmt.Errorf("sync state file: %w", err)
	}

	err = tmp.Close()
	if err != nil {
		return fmt.Errorf("close state file: %w", err)
	}

	err = os.Chmod(tmpPath, filePerm)
	if err != nil {
		return fmt.Errorf("chmod state file: %w", err)
	}

	err = os.Rename(tmpPath, path)
	if err != nil {
		return fmt.Errorf("replace state file: %w", err)
	}

	committed = true

	return nil
}

// LoadFile decodes the file at path into state, which must be a pointer.
// A missing file yields an error matching fs.ErrNotExist.
func LoadFile(path string, codec Codec, state any) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open state file: %w", err)
	}
	defer file.Close()

	err = codec.Decode(file, state)
	if err != nil {
		return fmt.Errorf("decode state: %w", err)
	}

	return nil
}
