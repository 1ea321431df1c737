package platform

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// File permissions
const (
	DefaultDirPermissions = 0755
)

// File extensions that never count as a finished artifact
var (
	SkippedExtensions  = []string{".part", ".ytdl", ".temp", ".tmp", ".aria2"}
	SubtitleExtensions = []string{".srt", ".vtt", ".ass", ".ssa", ".lrc", ".ttml"}
)

// ErrNoArtifact is returned when a session directory holds no media file
var ErrNoArtifact = errors.New("no downloaded file found")

// CreateDirectoryIfNotExists creates directory if it doesn't exist
func CreateDirectoryIfNotExists(dirPath string) error {
	if _, err := os.Stat(dirPath); IsNotExist(err) {
		return os.MkdirAll(dirPath, DefaultDirPermissions)
	}
	return nil
}

// SessionDir returns the directory that holds the files of one session
func SessionDir(root, sessionID string) string {
	return filepath.Join(root, filepath.Base(sessionID))
}

// EnsureSessionDir creates the session directory and returns its path
func EnsureSessionDir(root, sessionID string) (string, error) {
	dir := SessionDir(root, sessionID)
	if err := os.MkdirAll(dir, DefaultDirPermissions); err != nil {
		return "", fmt.Errorf("failed to create session directory: %w", err)
	}
	return dir, nil
}

// PurgeDirectory removes every entry inside dir but keeps dir itself.
// A missing directory is not an error.
func PurgeDirectory(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read directory %s: %w", dir, err)
	}

	var errs []error
	for _, entry := range entries {
		if err := os.RemoveAll(filepath.Join(dir, entry.Name())); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// RemoveDirectory deletes dir recursively, tolerating an already missing path
func RemoveDirectory(dir string) error {
	if err := os.RemoveAll(dir); err != nil && !IsNotExist(err) {
		return err
	}
	return nil
}

// RemoveFile deletes a single file, tolerating an already missing path
func RemoveFile(path string) error {
	if err := os.Remove(path); err != nil && !IsNotExist(err) {
		return err
	}
	return nil
}

// RegularFileSize returns the size of path if it is an existing regular file
func RegularFileSize(path string) (int64, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, err
	}
	if !info.Mode().IsRegular() {
		return 0, fmt.Errorf("not a regular file: %s", path)
	}
	return info.Size(), nil
}

// DirectoryEntry describes a first-level directory under the download root
type DirectoryEntry struct {
	Name    string
	Path    string
	ModTime time.Time
}

// ListSessionDirs returns the directories directly under root
func ListSessionDirs(root string) ([]DirectoryEntry, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		if IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	dirs := make([]DirectoryEntry, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		dirs = append(dirs, DirectoryEntry{
			Name:    entry.Name(),
			Path:    filepath.Join(root, entry.Name()),
			ModTime: info.ModTime(),
		})
	}
	return dirs, nil
}

// FindArtifact locates the finished media file inside dir. The engine-reported
// path is preferred when it exists; otherwise a file sharing its base name is
// chosen (merging may change the extension), and finally the largest media
// file in the directory.
func FindArtifact(dir, hint string) (string, error) {
	if hint != "" {
		if !filepath.IsAbs(hint) && filepath.Dir(hint) == "." {
			hint = filepath.Join(dir, hint)
		}
		if _, err := RegularFileSize(hint); err == nil && isArtifactName(hint) {
			return hint, nil
		}
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", fmt.Errorf("failed to read directory %s: %w", dir, err)
	}

	hintBase := ""
	if hint != "" {
		hintBase = strings.TrimSuffix(filepath.Base(hint), filepath.Ext(hint))
	}

	type candidate struct {
		path string
		size int64
	}
	var sameName, others []candidate

	for _, entry := range entries {
		if entry.IsDir() || !isArtifactName(entry.Name()) {
			continue
		}
		info, err := entry.Info()
		if err != nil || !info.Mode().IsRegular() {
			continue
		}

		c := candidate{path: filepath.Join(dir, entry.Name()), size: info.Size()}
		base := strings.TrimSuffix(entry.Name(), filepath.Ext(entry.Name()))
		if hintBase != "" && base == hintBase {
			sameName = append(sameName, c)
		} else {
			others = append(others, c)
		}
	}

	pick := func(list []candidate) string {
		sort.Slice(list, func(i, j int) bool {
			if list[i].size != list[j].size {
				return list[i].size > list[j].size
			}
			return list[i].path < list[j].path
		})
		return list[0].path
	}

	if len(sameName) > 0 {
		return pick(sameName), nil
	}
	if len(others) > 0 {
		return pick(others), nil
	}
	return "", fmt.Errorf("%w in %s", ErrNoArtifact, dir)
}

// isArtifactName reports whether a file name can be a finished media file
func isArtifactName(name string) bool {
	lower := strings.ToLower(name)
	for _, ext := range SkippedExtensions {
		if strings.HasSuffix(lower, ext) {
			return false
		}
	}
	for _, ext := range SubtitleExtensions {
		if strings.HasSuffix(lower, ext) {
			return false
		}
	}
	return !strings.HasPrefix(filepath.Base(name), ".")
}

// IsNotExist reports whether err means a path is missing
func IsNotExist(err error) bool {
	return errors.Is(err, fs.ErrNotExist)
}
