package storage

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
)

func tempStore(t *testing.T) *FS {
	t.Helper()
	dir := t.TempDir()
	fs, err := NewFS(dir)
	if err != nil {
		t.Fatalf("NewFS: %v", err)
	}
	return fs
}

func TestWriteAndRead(t *testing.T) {
	s := tempStore(t)
	content := []byte("%PDF-1.4 agenda")
	if err := s.Write("Agenda-1.pdf", content); err != nil {
		t.Fatalf("Write: %v", err)
	}
	got, err := s.Read("Agenda-1.pdf")
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if string(got) != string(content) {
		t.Errorf("content mismatch: got %q", got)
	}
}

func TestWriteOverwrites(t *testing.T) {
	s := tempStore(t)
	_ = s.Write("Agenda-1.pdf", []byte("v1"))
	if err := s.Write("Agenda-1.pdf", []byte("v2")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	got, _ := s.Read("Agenda-1.pdf")
	if string(got) != "v2" {
		t.Errorf("content = %q, want v2", got)
	}
	// No temp files left behind.
	entries, _ := os.ReadDir(s.Root())
	if len(entries) != 1 {
		t.Errorf("entries = %d, want 1", len(entries))
	}
}

func TestOpen(t *testing.T) {
	s := tempStore(t)
	_ = s.Write("Agenda-2.pdf", []byte("stream me"))
	rc, info, err := s.Open("Agenda-2.pdf")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer rc.Close()
	data, _ := io.ReadAll(rc)
	if string(data) != "stream me" || info.Size != 9 || info.Checksum != Checksum([]byte("stream me")) {
		t.Errorf("data = %q info = %+v", data, info)
	}
}

func TestDelete(t *testing.T) {
	s := tempStore(t)
	_ = s.Write("del.pdf", []byte("bye"))
	if err := s.Delete("del.pdf"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := s.Read("del.pdf"); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("read deleted err = %v, want ErrNotExist", err)
	}
}

func TestList(t *testing.T) {
	s := tempStore(t)
	_ = s.Write("Agenda-a.pdf", []byte("a"))
	_ = s.Write("Agenda-b.pdf", []byte("b"))
	_ = os.WriteFile(filepath.Join(s.Root(), "readme.txt"), []byte("x"), 0o644)
	_ = os.Mkdir(filepath.Join(s.Root(), "sub.pdf"), 0o755)

	files, err := s.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(files) != 2 {
		t.Fatalf("files = %+v, want 2", files)
	}
	if files[0].Checksum != Checksum([]byte("a")) {
		t.Errorf("checksum = %s", files[0].Checksum)
	}
}

func TestRejectsUnsafeNames(t *testing.T) {
	s := tempStore(t)
	for _, name := range []string{"../escape.pdf", "a/b.pdf", "/etc/passwd", ".hidden.pdf", "notes.txt", ""} {
		if err := s.Write(name, []byte("x")); err == nil {
			t.Errorf("Write(%q) should fail", name)
		}
	}
}

func TestChecksum(t *testing.T) {
	// SHA-256 of the empty input.
	if got := Checksum(nil); got != "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855" {
		t.Errorf("checksum = %s", got)
	}
}
