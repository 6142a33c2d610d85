package manifest

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"sync"
)

// WalkIssue is a per-file read failure collected during a build. Issues do
// not abort the walk; callers decide whether a partial manifest is usable.
type WalkIssue struct {
	Path string
	Err  error
}

const maxHashWorkers = 8

// Build walks the tree under root and produces an unsealed Builder with one
// entry per regular file. File contents are hashed with bounded concurrency;
// entry order is irrelevant because Finalize sorts before hashing. Returns
// ErrEmptyTree via Finalize when no files were found; an unreadable root is
// fatal here.
func Build(root, sourceKind string) (*Builder, []WalkIssue, error) {
	builder, err := NewBuilder(sourceKind)
	if err != nil {
		return nil, nil, err
	}

	var paths []string
	var walkIssues []WalkIssue
	walkErr := filepath.WalkDir(root, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			if path == root {
				return err
			}
			relative, relErr := relativePath(root, path)
			if relErr != nil {
				relative = path
			}
			walkIssues = append(walkIssues, WalkIssue{Path: relative, Err: err})
			return nil
		}
		if entry.Type().IsRegular() {
			paths = append(paths, path)
		}
		return nil
	})
	if walkErr != nil {
		return nil, nil, fmt.Errorf("walk %s: %w", root, walkErr)
	}

	type hashResult struct {
		relative string
		size     uint64
		digest   string
		err      error
	}

	results := make([]hashResult, len(paths))
	workers := runtime.NumCPU()
	if workers > maxHashWorkers {
		workers = maxHashWorkers
	}
	if workers < 1 {
		workers = 1
	}
	jobs := make(chan int)
	var group sync.WaitGroup
	for worker := 0; worker < workers; worker++ {
		group.Add(1)
		go func() {
			defer group.Done()
			for index := range jobs {
				path := paths[index]
				relative, err := relativePath(root, path)
				if err != nil {
					results[index] = hashResult{relative: path, err: err}
					continue
				}
				digest, size, err := hashFile(path)
				results[index] = hashResult{relative: relative, size: size, digest: digest, err: err}
			}
		}()
	}
	for index := range paths {
		jobs <- index
	}
	close(jobs)
	group.Wait()

	issues := walkIssues
	for _, result := range results {
		if result.err != nil {
			issues = append(issues, WalkIssue{Path: result.relative, Err: result.err})
			continue
		}
		if err := builder.AddFile(result.relative, result.size, result.digest); err != nil {
			return nil, nil, err
		}
	}
	sort.Slice(issues, func(i, j int) bool { return issues[i].Path < issues[j].Path })
	return builder, issues, nil
}

func relativePath(root, path string) (string, error) {
	relative, err := filepath.Rel(root, path)
	if err != nil {
		return "", fmt.Errorf("relativize %s: %w", path, err)
	}
	return NormalizePath(filepath.ToSlash(relative))
}

// HashFile returns the sha256 hex digest and size of one file on disk.
func HashFile(path string) (string, uint64, error) {
	return hashFile(path)
}

func hashFile(path string) (string, uint64, error) {
	// #nosec G304 -- path comes from an explicit walk of the caller's root.
	file, err := os.Open(path)
	if err != nil {
		return "", 0, err
	}
	defer func() {
		_ = file.Close()
	}()
	hasher := sha256.New()
	size, err := io.Copy(hasher, file)
	if err != nil {
		return "", 0, fmt.Errorf("hash %s: %w", path, err)
	}
	return hex.EncodeToString(hasher.Sum(nil)), uint64(size), nil
}
