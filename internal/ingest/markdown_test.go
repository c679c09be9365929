package ingest

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mfatir-y/mutimodal-ai-agent/internal/retrieval"
)

const sampleDoc = `Intro text before any heading.

# Getting Started

Install the tool and run it.

## Configuration

Set the port in config.yaml.

### Advanced

Deeper headings stay with their section.

# Usage

Run the generate command.
`

func TestChunkMarkdown(t *testing.T) {
	chunks := ChunkMarkdown([]byte(sampleDoc))

	if len(chunks) != 4 {
		t.Fatalf("len = %d, want 4: %+v", len(chunks), chunks)
	}

	// Preamble before the first heading has no section title.
	if chunks[0].Section != "" || !strings.Contains(chunks[0].Content, "Intro text") {
		t.Errorf("chunk[0] = %+v", chunks[0])
	}
	if chunks[1].Section != "Getting Started" {
		t.Errorf("chunk[1].Section = %q", chunks[1].Section)
	}
	if chunks[2].Section != "Configuration" {
		t.Errorf("chunk[2].Section = %q", chunks[2].Section)
	}
	// The h3 content belongs to the enclosing h2 section.
	if !strings.Contains(chunks[2].Content, "Deeper headings") {
		t.Errorf("chunk[2].Content = %q, want the h3 body folded in", chunks[2].Content)
	}
	if chunks[3].Section != "Usage" {
		t.Errorf("chunk[3].Section = %q", chunks[3].Section)
	}
}

func TestChunkMarkdownEmpty(t *testing.T) {
	if chunks := ChunkMarkdown([]byte("")); len(chunks) != 0 {
		t.Errorf("ChunkMarkdown(\"\") = %v, want none", chunks)
	}
	if chunks := ChunkMarkdown([]byte("# Only A Heading")); len(chunks) != 0 {
		t.Errorf("heading-only doc produced chunks: %v", chunks)
	}
}

func TestChunkMarkdownKeepsCodeFences(t *testing.T) {
	doc := "# Example\n\n```python\nprint('hi')\n```\n"
	chunks := ChunkMarkdown([]byte(doc))
	if len(chunks) != 1 {
		t.Fatalf("len = %d, want 1", len(chunks))
	}
	if !strings.Contains(chunks[0].Content, "print('hi')") {
		t.Errorf("code fence body lost: %q", chunks[0].Content)
	}
}

// countingEmbedder returns a fixed vector and counts calls.
type countingEmbedder struct {
	calls int
	err   error
}

func (e *countingEmbedder) Generate(ctx context.Context, text string) ([]float32, error) {
	e.calls++
	if e.err != nil {
		return nil, e.err
	}
	return []float32{1, 0}, nil
}

func newTestIndex(t *testing.T, embedder retrieval.Embedder) *retrieval.Index {
	t.Helper()
	idx, err := retrieval.NewIndex(filepath.Join(t.TempDir(), "retrieval.db"), embedder)
	if err != nil {
		t.Fatalf("NewIndex() error: %v", err)
	}
	t.Cleanup(func() { idx.Close() })
	return idx
}

func TestIngestString(t *testing.T) {
	emb := &countingEmbedder{}
	idx := newTestIndex(t, emb)
	ing := New(idx, emb, slog.New(slog.NewTextHandler(io.Discard, nil)))

	count, err := ing.IngestString(context.Background(), "doc.md", sampleDoc)
	if err != nil {
		t.Fatalf("IngestString() error: %v", err)
	}
	if count != 4 {
		t.Errorf("count = %d, want 4", count)
	}
	if emb.calls != 4 {
		t.Errorf("embedder called %d times, want 4", emb.calls)
	}

	n, _ := idx.Count(context.Background())
	if n != 4 {
		t.Errorf("index holds %d chunks, want 4", n)
	}
}

func TestIngestStringReplacesPreviousImport(t *testing.T) {
	idx := newTestIndex(t, nil)
	ing := New(idx, nil, slog.New(slog.NewTextHandler(io.Discard, nil)))
	ctx := context.Background()

	if _, err := ing.IngestString(ctx, "doc.md", "# A\n\nfirst version\n"); err != nil {
		t.Fatalf("IngestString() error: %v", err)
	}
	if _, err := ing.IngestString(ctx, "doc.md", "# A\n\nsecond version\n"); err != nil {
		t.Fatalf("IngestString() error: %v", err)
	}

	n, _ := idx.Count(ctx)
	if n != 1 {
		t.Errorf("index holds %d chunks after re-import, want 1", n)
	}
}

func TestIngestStringEmbeddingFailureDegrades(t *testing.T) {
	emb := &countingEmbedder{err: fmt.Errorf("embedding model offline")}
	idx := newTestIndex(t, emb)
	ing := New(idx, emb, slog.New(slog.NewTextHandler(io.Discard, nil)))

	// Chunks still land in the index, just without vectors.
	count, err := ing.IngestString(context.Background(), "doc.md", "# A\n\nbody\n")
	if err != nil {
		t.Fatalf("IngestString() error: %v", err)
	}
	if count != 1 {
		t.Errorf("count = %d, want 1", count)
	}
}
