// Package filestore implements the on-disk side of the backup service:
// one directory per user under a fixed root, and a collision-safe writer
// that never overwrites previously stored content.
package filestore

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/patric-chuzhbe/filekeeper/internal/models"
)

// maxNameAttempts bounds the collision counter; exceeding it means the
// directory is pathologically full of same-stemmed names and the write
// is refused instead of looping forever.
const maxNameAttempts = 1000

// maxFilenameLength is the NAME_MAX of the common filesystems this
// service targets; longer names are rejected as invalid.
const maxFilenameLength = 255

// FileStore resolves per-user directories under a single base root and
// performs all file reads and writes for the service.
type FileStore struct {
	root string
}

// New returns a FileStore rooted at the given base directory,
// creating the root if it does not exist yet.
func New(root string) (*FileStore, error) {
	if root == "" {
		return nil, fmt.Errorf("%w: empty storage root", models.ErrStorageUnavailable)
	}

	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("%w: creating storage root %q: %v", models.ErrStorageUnavailable, root, err)
	}

	return &FileStore{root: root}, nil
}

// ResolveUserDir maps a user id to its isolated directory under the root,
// creating the directory when absent. The mapping is deterministic and the
// call is idempotent. Ids are numeric, so the derived path can never leave
// the root.
func (fs *FileStore) ResolveUserDir(userID int64) (string, error) {
	dir := fs.userDirPath(userID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("%w: creating user directory %q: %v", models.ErrStorageUnavailable, dir, err)
	}

	return dir, nil
}

// Store writes the byte stream into the directory under the desired
// filename, resolving collisions with a `stem_N.ext` counter starting at 1.
// Each candidate is claimed with an exclusive create, so the chosen name is
// never stolen by a concurrent upload. It returns the final physical name.
func (fs *FileStore) Store(dir, desiredFilename string, data io.Reader) (string, error) {
	name, err := SanitizeFilename(desiredFilename)
	if err != nil {
		return "", err
	}

	stem, ext := splitExtension(name)

	for attempt := 0; attempt < maxNameAttempts; attempt++ {
		candidate := name
		if attempt > 0 {
			candidate = fmt.Sprintf("%s_%d%s", stem, attempt, ext)
		}

		path := filepath.Join(dir, candidate)
		file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if errors.Is(err, os.ErrExist) {
			continue
		}
		if err != nil {
			return "", fmt.Errorf("%w: creating %q: %v", models.ErrStorageUnavailable, path, err)
		}

		if _, err := io.Copy(file, data); err != nil {
			_ = file.Close()
			_ = os.Remove(path)
			return "", fmt.Errorf("%w: %v", models.ErrWriteFailed, err)
		}

		if err := file.Close(); err != nil {
			_ = os.Remove(path)
			return "", fmt.Errorf("%w: %v", models.ErrWriteFailed, err)
		}

		return candidate, nil
	}

	return "", fmt.Errorf(
		"%w: no free name for %q after %d attempts",
		models.ErrStorageUnavailable,
		name,
		maxNameAttempts,
	)
}

// List enumerates the physical filenames stored for the user, sorted.
// A user without a directory yet yields an empty slice, not an error.
func (fs *FileStore) List(userID int64) ([]string, error) {
	entries, err := os.ReadDir(fs.userDirPath(userID))
	if errors.Is(err, os.ErrNotExist) {
		return []string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrStorageUnavailable, err)
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		names = append(names, entry.Name())
	}

	return names, nil
}

// Open opens a stored file for reading. The filename goes through the same
// sanitization as on upload, so a traversal attempt never reaches the
// filesystem. Absent files are reported as models.ErrNotFound.
func (fs *FileStore) Open(userID int64, filename string) (*os.File, error) {
	name, err := SanitizeFilename(filename)
	if err != nil {
		return nil, err
	}

	file, err := os.Open(filepath.Join(fs.userDirPath(userID), name))
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %q", models.ErrNotFound, name)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrStorageUnavailable, err)
	}

	return file, nil
}

// UserDirPath returns the directory derived for the user without touching
// the filesystem.
func (fs *FileStore) UserDirPath(userID int64) string {
	return fs.userDirPath(userID)
}

func (fs *FileStore) userDirPath(userID int64) string {
	return filepath.Join(fs.root, strconv.FormatInt(userID, 10))
}

// SanitizeFilename reduces an untrusted client-supplied filename to a bare
// name with no directory components. Empty names, dot names, names with
// path separators or NUL bytes, and names longer than 255 bytes are
// rejected with models.ErrInvalidFilename.
func SanitizeFilename(desiredFilename string) (string, error) {
	if desiredFilename == "" {
		return "", fmt.Errorf("%w: empty filename", models.ErrInvalidFilename)
	}

	if strings.ContainsAny(desiredFilename, "/\\\x00") {
		return "", fmt.Errorf("%w: %q contains path separators", models.ErrInvalidFilename, desiredFilename)
	}

	if desiredFilename == "." || desiredFilename == ".." {
		return "", fmt.Errorf("%w: %q", models.ErrInvalidFilename, desiredFilename)
	}

	if len(desiredFilename) > maxFilenameLength {
		return "", fmt.Errorf("%w: filename longer than %d bytes", models.ErrInvalidFilename, maxFilenameLength)
	}

	return desiredFilename, nil
}

func splitExtension(name string) (string, string) {
	ext := filepath.Ext(name)
	return strings.TrimSuffix(name, ext), ext
}
