package diagnostics

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/chopper-cli/chopper/internal/manifest"
)

func TestScanExtensionWarnings(t *testing.T) {
	root := t.TempDir()
	if err := os.MkdirAll(filepath.Join(root, "aliases"), 0o755); err != nil {
		t.Fatal(err)
	}
	for _, name := range []string{"ok.toml", "ok.tengo", "legacy", "legacy.conf", "bad.yaml"} {
		if err := os.WriteFile(filepath.Join(root, "aliases", name), nil, 0o644); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.WriteFile(filepath.Join(root, "stray.json"), nil, 0o644); err != nil {
		t.Fatal(err)
	}

	warnings := ScanExtensionWarnings(root)
	if len(warnings) != 2 {
		t.Fatalf("warnings = %v, want 2", warnings)
	}
	if !strings.Contains(warnings[0], "bad.yaml") && !strings.Contains(warnings[1], "bad.yaml") {
		t.Errorf("bad.yaml not flagged: %v", warnings)
	}
}

func TestScanExtensionWarningsMissingRoot(t *testing.T) {
	if warnings := ScanExtensionWarnings(filepath.Join(t.TempDir(), "nope")); len(warnings) != 0 {
		t.Errorf("warnings = %v, want none", warnings)
	}
}

func TestManifestMissingTargetWarnings(t *testing.T) {
	dir := t.TempDir()
	present := filepath.Join(dir, "present.tengo")
	if err := os.WriteFile(present, nil, 0o644); err != nil {
		t.Fatal(err)
	}

	m := &manifest.Manifest{
		Exec:      filepath.Join(dir, "missing-binary"),
		Reconcile: &manifest.Reconcile{ScriptPath: filepath.Join(dir, "missing.tengo")},
		Bashcomp:  &manifest.Bashcomp{ScriptPath: present},
	}
	warnings := ManifestMissingTargetWarnings(m)
	if len(warnings) != 2 {
		t.Fatalf("warnings = %v, want 2", warnings)
	}

	// Bare exec names are left to path lookup.
	m = &manifest.Manifest{Exec: "definitely-not-on-path-xyz"}
	if warnings := ManifestMissingTargetWarnings(m); len(warnings) != 0 {
		t.Errorf("bare exec warned: %v", warnings)
	}
}
