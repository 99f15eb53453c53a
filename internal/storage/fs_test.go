package storage

import (
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestFSStorePutGetDelete(t *testing.T) {
	base := t.TempDir()
	s, err := NewFSStore(base)
	if err != nil {
		t.Fatalf("NewFSStore: %v", err)
	}

	key := UploadKey("job-1", "notas.xlsx")
	got, err := s.Put(key, strings.NewReader("conteudo"))
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if got != key {
		t.Errorf("expected key %q, got %q", key, got)
	}

	rc, err := s.Get(key)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	data, err := io.ReadAll(rc)
	rc.Close()
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if string(data) != "conteudo" {
		t.Errorf("expected conteudo, got %q", data)
	}

	if err := s.Delete(key); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := s.Get(key); !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("expected not exist after delete, got %v", err)
	}
	if _, err := os.Stat(filepath.Join(base, "importacoes")); !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("expected empty job directories to be removed, got %v", err)
	}
	if err := s.Delete(key); err != nil {
		t.Errorf("deleting a missing key should succeed, got %v", err)
	}
}

func TestFSStoreRejectsEscapingKeys(t *testing.T) {
	s, err := NewFSStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFSStore: %v", err)
	}
	for _, key := range []string{"", "../outside", "a/../../outside", "/etc/passwd"} {
		if _, err := s.Put(key, strings.NewReader("x")); !errors.Is(err, ErrInvalidKey) {
			t.Errorf("Put(%q): expected ErrInvalidKey, got %v", key, err)
		}
	}
}
