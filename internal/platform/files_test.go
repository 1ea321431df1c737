package platform

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func writeFile(t *testing.T, path string, size int) {
	t.Helper()
	if err := os.WriteFile(path, make([]byte, size), 0644); err != nil {
		t.Fatalf("Failed to write %s: %v", path, err)
	}
}

func TestCreateDirectoryIfNotExists(t *testing.T) {
	tempDir := t.TempDir()
	testDir := filepath.Join(tempDir, "test_dir")

	if _, err := os.Stat(testDir); !os.IsNotExist(err) {
		t.Fatalf("Test directory already exists: %s", testDir)
	}

	if err := CreateDirectoryIfNotExists(testDir); err != nil {
		t.Fatalf("Failed to create directory: %v", err)
	}

	if _, err := os.Stat(testDir); os.IsNotExist(err) {
		t.Fatalf("Directory was not created: %s", testDir)
	}

	// Second call should not fail
	if err := CreateDirectoryIfNotExists(testDir); err != nil {
		t.Fatalf("Failed to handle existing directory: %v", err)
	}
}

func TestSessionDir_StripsPathElements(t *testing.T) {
	root := "/data/downloads"

	if got := SessionDir(root, "abc"); got != "/data/downloads/abc" {
		t.Errorf("expected /data/downloads/abc, got %s", got)
	}
	if got := SessionDir(root, "../../etc"); got != "/data/downloads/etc" {
		t.Errorf("expected traversal to be stripped, got %s", got)
	}
}

func TestEnsureSessionDir(t *testing.T) {
	root := t.TempDir()

	dir, err := EnsureSessionDir(root, "s1")
	if err != nil {
		t.Fatalf("EnsureSessionDir failed: %v", err)
	}
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		t.Fatalf("expected %s to be a directory", dir)
	}
}

func TestPurgeDirectory(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "old.mp4"), 10)
	if err := os.Mkdir(filepath.Join(dir, "nested"), 0755); err != nil {
		t.Fatal(err)
	}
	writeFile(t, filepath.Join(dir, "nested", "x.part"), 1)

	if err := PurgeDirectory(dir); err != nil {
		t.Fatalf("PurgeDirectory failed: %v", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("directory should survive purge: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("expected empty directory, got %d entries", len(entries))
	}

	if err := PurgeDirectory(filepath.Join(dir, "missing")); err != nil {
		t.Errorf("purging a missing directory should succeed, got %v", err)
	}
}

func TestRemoveDirectory_ToleratesMissing(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "gone")
	if err := RemoveDirectory(dir); err != nil {
		t.Errorf("expected nil for missing dir, got %v", err)
	}
}

func TestRemoveFile_ToleratesMissing(t *testing.T) {
	if err := RemoveFile(filepath.Join(t.TempDir(), "nope.mp4")); err != nil {
		t.Errorf("expected nil for missing file, got %v", err)
	}
}

func TestListSessionDirs(t *testing.T) {
	root := t.TempDir()
	for _, name := range []string{"a", "b"} {
		if err := os.Mkdir(filepath.Join(root, name), 0755); err != nil {
			t.Fatal(err)
		}
	}
	writeFile(t, filepath.Join(root, "stray.txt"), 1)

	dirs, err := ListSessionDirs(root)
	if err != nil {
		t.Fatalf("ListSessionDirs failed: %v", err)
	}
	if len(dirs) != 2 {
		t.Fatalf("expected 2 directories, got %d", len(dirs))
	}

	missing, err := ListSessionDirs(filepath.Join(root, "none"))
	if err != nil || missing != nil {
		t.Errorf("expected nil, nil for missing root, got %v, %v", missing, err)
	}
}

func TestFindArtifact(t *testing.T) {
	tests := []struct {
		name     string
		files    map[string]int
		hint     string
		expected string
		wantErr  bool
	}{
		{
			name:     "hint exists",
			files:    map[string]int{"Clip.mp4": 10, "Other.mkv": 50},
			hint:     "Clip.mp4",
			expected: "Clip.mp4",
		},
		{
			name:     "merged extension differs from hint",
			files:    map[string]int{"Clip.mkv": 10, "Bigger.webm": 50},
			hint:     "Clip.webm",
			expected: "Clip.mkv",
		},
		{
			name:     "partial and subtitle files are ignored",
			files:    map[string]int{"Clip.mp4.part": 500, "Clip.en.srt": 400, "Clip.mp4": 10},
			expected: "Clip.mp4",
		},
		{
			name:     "largest media file wins without hint",
			files:    map[string]int{"a.m4a": 5, "b.mp4": 20},
			expected: "b.mp4",
		},
		{
			name:    "nothing servable",
			files:   map[string]int{"x.part": 5, "x.ytdl": 1},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			for name, size := range tt.files {
				writeFile(t, filepath.Join(dir, name), size)
			}

			hint := ""
			if tt.hint != "" {
				hint = filepath.Join(dir, tt.hint)
			}

			got, err := FindArtifact(dir, hint)
			if tt.wantErr {
				if !errors.Is(err, ErrNoArtifact) {
					t.Fatalf("expected ErrNoArtifact, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if filepath.Base(got) != tt.expected {
				t.Errorf("expected %s, got %s", tt.expected, filepath.Base(got))
			}
		})
	}
}

func TestRegularFileSize(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "f.bin")
	writeFile(t, path, 7)

	size, err := RegularFileSize(path)
	if err != nil || size != 7 {
		t.Errorf("expected 7, nil; got %d, %v", size, err)
	}

	if _, err := RegularFileSize(dir); err == nil {
		t.Error("expected error for directory")
	}

	_, err = RegularFileSize(filepath.Join(dir, "missing"))
	if !IsNotExist(err) {
		t.Errorf("expected not-exist error, got %v", err)
	}
}
