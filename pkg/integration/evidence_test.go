package integration

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/opencode-ai/controlplane/internal/atomicfile"
)

func TestEvidenceWriterWritesOneFilePerArtifact(t *testing.T) {
	dir := t.TempDir()
	w := NewEvidenceWriter(dir)

	ev, err := w.Write(Evidence{TaskID: "t1", Category: "code", Selection: "gpt-x", Strategy: "primary", HighImpact: true})
	if err != nil {
		t.Fatal(err)
	}
	if ev.ID == "" {
		t.Fatalf("want an id assigned")
	}

	var reread Evidence
	if err := atomicfile.ReadJSON(filepath.Join(dir, ev.ID+".json"), &reread); err != nil {
		t.Fatal(err)
	}
	if reread.TaskID != "t1" {
		t.Fatalf("want task id to round-trip, got %+v", reread)
	}
}

func TestEvidenceWriterEmptyDirIsNoopSink(t *testing.T) {
	w := NewEvidenceWriter("")
	ev, err := w.Write(Evidence{TaskID: "t2"})
	if err != nil {
		t.Fatal(err)
	}
	if ev.ID == "" {
		t.Fatalf("want an id assigned even for the no-op sink")
	}
}

func TestEvidenceFilesAreDistinctPerTask(t *testing.T) {
	dir := t.TempDir()
	w := NewEvidenceWriter(dir)
	for i := 0; i < 3; i++ {
		if _, err := w.Write(Evidence{TaskID: "multi"}); err != nil {
			t.Fatal(err)
		}
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 3 {
		t.Fatalf("want 3 distinct evidence files, got %d", len(entries))
	}
}
