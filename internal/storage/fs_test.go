package storage

import (
	"os"
	"path/filepath"
	"testing"
)

func tempSeedDir(t *testing.T) *FS {
	t.Helper()
	dir := t.TempDir()
	fs, err := NewFS(dir)
	if err != nil {
		t.Fatalf("NewFS: %v", err)
	}
	return fs
}

func write(t *testing.T, fs *FS, rel, content string) {
	t.Helper()
	p := filepath.Join(fs.root, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestRead(t *testing.T) {
	s := tempSeedDir(t)
	write(t, s, "music/playlists.yaml", "linkTypes: []\n")

	got, err := s.Read("music/playlists.yaml")
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if string(got) != "linkTypes: []\n" {
		t.Errorf("content = %q", got)
	}
}

func TestList(t *testing.T) {
	s := tempSeedDir(t)
	write(t, s, "b.yaml", "b")
	write(t, s, "sub/a.yml", "a")
	write(t, s, "readme.txt", "not seed")
	write(t, s, ".hidden.yaml", "skip")

	items, err := s.List("")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("len = %d, want 2", len(items))
	}
	if items[0].Path != "b.yaml" || items[1].Path != "sub/a.yml" {
		t.Errorf("paths = %q, %q", items[0].Path, items[1].Path)
	}
	if items[0].Checksum != Checksum([]byte("b")) {
		t.Errorf("checksum = %q", items[0].Checksum)
	}
}

func TestChecksumChangesWithContent(t *testing.T) {
	if Checksum([]byte("a")) == Checksum([]byte("b")) {
		t.Error("different content produced the same checksum")
	}
	if len(Checksum(nil)) != 64 {
		t.Errorf("checksum length = %d", len(Checksum(nil)))
	}
}

func TestTraversalBlocked(t *testing.T) {
	s := tempSeedDir(t)

	cases := []string{
		"../../etc/passwd",
		"../outside.yaml",
		"/etc/shadow",
	}
	for _, p := range cases {
		if _, err := s.Read(p); err == nil {
			t.Errorf("expected error for path %q", p)
		}
	}
	if _, err := s.List("../"); err == nil {
		t.Error("expected error listing outside the root")
	}
}

func TestIsSeedFile(t *testing.T) {
	cases := map[string]bool{
		"a.yaml":       true,
		"dir/b.YML":    true,
		"c.json":       false,
		".d.yaml":      false,
		"e.yaml.swp":   false,
		"no-extension": false,
	}
	for name, want := range cases {
		if got := IsSeedFile(name); got != want {
			t.Errorf("IsSeedFile(%q) = %v, want %v", name, got, want)
		}
	}
}

func TestNewFS_NonExistentDir(t *testing.T) {
	_, err := NewFS("/tmp/linkorder-does-not-exist-" + t.Name())
	if err == nil {
		t.Error("expected error for non-existent dir")
	}
}

func TestNewFS_FileNotDir(t *testing.T) {
	f, _ := os.CreateTemp("", "linkorder-test-*")
	_ = f.Close()
	defer os.Remove(f.Name())
	_, err := NewFS(f.Name())
	if err == nil {
		t.Error("expected error when root is a file")
	}
}
