package history

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/mfatir-y/mutimodal-ai-agent/internal/codegen"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(filepath.Join(t.TempDir(), "history.db"))
	if err != nil {
		t.Fatalf("NewStore() error: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func sampleRequest() codegen.Request {
	return codegen.Request{
		Prompt:    "write a greeter",
		ChatModel: "mistral",
		CodeModel: "codellama",
	}
}

func sampleArtifact() *codegen.Artifact {
	return &codegen.Artifact{
		Code:        "print('hi')",
		Description: "greets",
		Filename:    "hello.py",
	}
}

func TestAddAndGet(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	entry, err := s.Add(ctx, sampleRequest(), sampleArtifact())
	if err != nil {
		t.Fatalf("Add() error: %v", err)
	}
	if entry.CodeID == "" {
		t.Fatal("Add() returned empty CodeID")
	}
	if entry.Timestamp.IsZero() {
		t.Error("Add() returned zero timestamp")
	}

	got, err := s.Get(ctx, entry.CodeID)
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if got == nil {
		t.Fatal("Get() returned nil for a stored entry")
	}
	if got.Prompt != "write a greeter" || got.Filename != "hello.py" || got.Code != "print('hi')" {
		t.Errorf("entry = %+v", got)
	}
}

func TestGetMissing(t *testing.T) {
	s := newTestStore(t)

	got, err := s.Get(context.Background(), "no-such-id")
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if got != nil {
		t.Errorf("Get() = %+v, want nil for unknown id", got)
	}
}

func TestCodeIDsAreUnique(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	seen := make(map[string]bool)
	for i := 0; i < 10; i++ {
		entry, err := s.Add(ctx, sampleRequest(), sampleArtifact())
		if err != nil {
			t.Fatalf("Add() error: %v", err)
		}
		if seen[entry.CodeID] {
			t.Fatalf("duplicate CodeID %q", entry.CodeID)
		}
		seen[entry.CodeID] = true
	}
}

func TestListNewestFirst(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := s.Add(ctx, sampleRequest(), sampleArtifact()); err != nil {
			t.Fatalf("Add() error: %v", err)
		}
	}

	entries, err := s.List(ctx, 10)
	if err != nil {
		t.Fatalf("List() error: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("len = %d, want 3", len(entries))
	}
	for i := 1; i < len(entries); i++ {
		if entries[i].Timestamp.After(entries[i-1].Timestamp) {
			t.Error("entries not in newest-first order")
		}
	}
}

func TestListLimit(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if _, err := s.Add(ctx, sampleRequest(), sampleArtifact()); err != nil {
			t.Fatalf("Add() error: %v", err)
		}
	}

	entries, err := s.List(ctx, 2)
	if err != nil {
		t.Fatalf("List() error: %v", err)
	}
	if len(entries) != 2 {
		t.Errorf("len = %d, want 2", len(entries))
	}

	n, err := s.Count(ctx)
	if err != nil {
		t.Fatalf("Count() error: %v", err)
	}
	if n != 5 {
		t.Errorf("Count() = %d, want 5", n)
	}
}
