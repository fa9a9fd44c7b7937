package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestFilePublisher_Publish(t *testing.T) {
	dir := t.TempDir()
	publisher, err := NewFilePublisher(dir, "runs/today/results.json")
	if err != nil {
		t.Fatalf("NewFilePublisher: %v", err)
	}

	uri, err := publisher.Publish(context.Background(), []byte("[]"))
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}

	want := filepath.Join(dir, "runs", "today", "results.json")
	if uri != "file://"+want {
		t.Fatalf("uri = %q, want %q", uri, "file://"+want)
	}
	got, err := os.ReadFile(want)
	if err != nil {
		t.Fatalf("read document: %v", err)
	}
	if string(got) != "[]" {
		t.Fatalf("document = %q, want []", got)
	}
}

func TestFilePublisher_Overwrites(t *testing.T) {
	dir := t.TempDir()
	publisher, err := NewFilePublisher(dir, "results.json")
	if err != nil {
		t.Fatalf("NewFilePublisher: %v", err)
	}

	for _, doc := range []string{`[{"price": "£1.00"}]`, "[]"} {
		if _, err := publisher.Publish(context.Background(), []byte(doc)); err != nil {
			t.Fatalf("Publish(%s): %v", doc, err)
		}
	}

	got, err := os.ReadFile(publisher.Path())
	if err != nil {
		t.Fatalf("read document: %v", err)
	}
	if string(got) != "[]" {
		t.Fatalf("document = %q, want the second write", got)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected only results.json in %s, found %d entries", dir, len(entries))
	}
}

func TestNewFilePublisher_Validation(t *testing.T) {
	if _, err := NewFilePublisher("", "results.json"); err == nil {
		t.Fatal("expected error for empty directory")
	}
	if _, err := NewFilePublisher("out", ""); err == nil {
		t.Fatal("expected error for empty object")
	}
}

func TestEnsureDir_CurrentDirectory(t *testing.T) {
	if err := ensureDir("results.json"); err != nil {
		t.Fatalf("ensureDir: %v", err)
	}
}
