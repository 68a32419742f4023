package fingerprint

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestOfChangesOnEdit(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.toml")
	if err := os.WriteFile(path, []byte("exec = \"sh\"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	fp1, err := Of(path)
	if err != nil {
		t.Fatal(err)
	}

	// Ensure a distinguishable mtime even on coarse filesystem clocks.
	later := time.Now().Add(2 * time.Second)
	if err := os.Chtimes(path, later, later); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte("exec = \"sh\"\nextra = 1\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	fp2, err := Of(path)
	if err != nil {
		t.Fatal(err)
	}
	if fp1.Matches(fp2) {
		t.Fatalf("fingerprints matched after edit: %+v == %+v", fp1, fp2)
	}
}

func TestMatchesEqual(t *testing.T) {
	fp := Fingerprint{SourcePath: "x", ByteLength: 10, ModTimeNs: 5}
	if !fp.Matches(fp) {
		t.Fatalf("fingerprint did not match itself")
	}
}
