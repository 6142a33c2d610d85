// Package fsx provides the filesystem primitives every artifact writer and
// loader goes through: atomic writes so a crash never leaves a torn sealed
// object on disk, and size-capped reads so a corrupted or hostile file
// cannot exhaust memory during verification.
package fsx

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
)

// MaxArtifactBytes bounds any single stored manifest, record, or descriptor.
const MaxArtifactBytes = int64(64 * 1024 * 1024)

func WriteFileAtomic(path string, content []byte, mode os.FileMode) error {
	parent := filepath.Dir(path)
	base := filepath.Base(path)

	tempFile, err := os.CreateTemp(parent, "."+base+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tempPath := tempFile.Name()
	cleanup := true
	defer func() {
		if cleanup {
			_ = os.Remove(tempPath)
		}
	}()

	if _, err := tempFile.Write(content); err != nil {
		_ = tempFile.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tempFile.Sync(); err != nil {
		_ = tempFile.Close()
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tempFile.Chmod(mode); err != nil {
		_ = tempFile.Close()
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err := tempFile.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}

	if err := os.Rename(tempPath, path); err != nil {
		if runtime.GOOS != "windows" {
			return fmt.Errorf("rename temp file: %w", err)
		}
		if removeErr := os.Remove(path); removeErr != nil && !os.IsNotExist(removeErr) {
			return fmt.Errorf("remove destination before rename: %w", removeErr)
		}
		if renameErr := os.Rename(tempPath, path); renameErr != nil {
			return fmt.Errorf("rename temp file after remove: %w", renameErr)
		}
	}
	cleanup = false

	// #nosec G304 -- parent directory path is derived from explicit caller-provided destination path.
	if dirHandle, err := os.Open(parent); err == nil {
		_ = dirHandle.Sync()
		_ = dirHandle.Close()
	}
	return nil
}

// ReadFileCapped reads a stored artifact, rejecting files larger than
// MaxArtifactBytes before reading them into memory.
func ReadFileCapped(path string) ([]byte, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if info.Size() > MaxArtifactBytes {
		return nil, fmt.Errorf("artifact exceeds size limit (%d bytes): %s", MaxArtifactBytes, path)
	}
	// #nosec G304 -- path is explicit local user input.
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = file.Close()
	}()
	content, err := io.ReadAll(io.LimitReader(file, MaxArtifactBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read artifact: %w", err)
	}
	if int64(len(content)) > MaxArtifactBytes {
		return nil, fmt.Errorf("artifact exceeds size limit (%d bytes): %s", MaxArtifactBytes, path)
	}
	return content, nil
}
