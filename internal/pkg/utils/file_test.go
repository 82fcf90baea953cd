package utils

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func TestReadLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "targets.txt")
	content := "a.com\n\n# comment\n  b.com  \n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	lines, err := ReadLines(path)
	if err != nil {
		t.Fatalf("ReadLines: %v", err)
	}
	if !reflect.DeepEqual(lines, []string{"a.com", "b.com"}) {
		t.Errorf("lines = %v", lines)
	}

	if _, err := ReadLines(filepath.Join(t.TempDir(), "missing.txt")); err == nil {
		t.Error("missing file should error")
	}
}

func TestWriteTempLines(t *testing.T) {
	path, err := WriteTempLines("utils_test_*.txt", []string{"a", "b"})
	if err != nil {
		t.Fatalf("WriteTempLines: %v", err)
	}
	defer os.Remove(path)

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "a\nb\n" {
		t.Errorf("content = %q", string(data))
	}
}

func TestTailLines(t *testing.T) {
	if got := TailLines("a\nb\n\nc\n", 2); got != "b\nc" {
		t.Errorf("TailLines = %q", got)
	}
	if got := TailLines("", 3); got != "" {
		t.Errorf("empty input = %q", got)
	}
}
