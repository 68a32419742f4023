package manifest

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
)

func writeManifestFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing %s: %v", path, err)
	}
	return path
}

func TestParseStructured(t *testing.T) {
	dir := t.TempDir()
	path := writeManifestFile(t, dir, "greet.toml", `
exec = "sh"
args = ["-c", "echo hi"]

[env_set]
X = "from_alias"

[journal]
namespace = "u1000-greet"
identifier = "greet"
ensure = true

[reconcile]
script_path = "greet.tengo"
function_name = "reconcile"
`)

	m, err := ParseFile(path)
	if err != nil {
		t.Fatalf("ParseFile: %v", err)
	}
	if m.Exec != "sh" {
		t.Errorf("exec = %q, want sh", m.Exec)
	}
	if want := []string{"-c", "echo hi"}; !reflect.DeepEqual(m.Args, want) {
		t.Errorf("args = %v, want %v", m.Args, want)
	}
	if m.EnvSet["X"] != "from_alias" {
		t.Errorf("env_set.X = %q", m.EnvSet["X"])
	}
	if m.Journal == nil || m.Journal.Namespace != "u1000-greet" {
		t.Fatalf("journal = %+v", m.Journal)
	}
	if !m.Journal.StderrEnabled {
		t.Error("stderr_enabled should default to true")
	}
	if !m.Journal.Ensure {
		t.Error("ensure = false, want true")
	}
	if m.Reconcile == nil {
		t.Fatal("reconcile missing")
	}
	// Relative script paths resolve against the manifest's directory.
	if want := filepath.Join(dir, "greet.tengo"); m.Reconcile.ScriptPath != want {
		t.Errorf("reconcile.script_path = %q, want %q", m.Reconcile.ScriptPath, want)
	}
}

func TestParseStructuredStripsBOM(t *testing.T) {
	dir := t.TempDir()
	path := writeManifestFile(t, dir, "b.toml", "\xef\xbb\xbfexec = \"true\"\n")
	m, err := ParseFile(path)
	if err != nil {
		t.Fatalf("ParseFile: %v", err)
	}
	if m.Exec != "true" {
		t.Errorf("exec = %q", m.Exec)
	}
}

func TestParseStructuredRejectsBlankExec(t *testing.T) {
	dir := t.TempDir()
	path := writeManifestFile(t, dir, "b.toml", "exec = \"  \"\n")
	if _, err := ParseFile(path); err == nil {
		t.Fatal("expected error for blank exec")
	}
}

func TestParseStructuredRejectsDuplicateEnvKeysAfterTrim(t *testing.T) {
	dir := t.TempDir()
	path := writeManifestFile(t, dir, "b.toml", `
exec = "true"
[env_set]
"X" = "a"
" X " = "b"
`)
	_, err := ParseFile(path)
	if err == nil || !strings.Contains(err.Error(), "duplicate env key") {
		t.Fatalf("err = %v, want duplicate env key error", err)
	}
}

func TestParseStructuredRejectsEnvKeyWithEquals(t *testing.T) {
	dir := t.TempDir()
	path := writeManifestFile(t, dir, "b.toml", `
exec = "true"
[env_set]
"A=B" = "x"
`)
	if _, err := ParseFile(path); err == nil {
		t.Fatal("expected error for env key containing =")
	}
}

func TestParseBlankJournalIdentifierCollapsesToAbsent(t *testing.T) {
	dir := t.TempDir()
	path := writeManifestFile(t, dir, "b.toml", `
exec = "true"
[journal]
namespace = "u1000-x"
identifier = "   "
`)
	m, err := ParseFile(path)
	if err != nil {
		t.Fatalf("ParseFile: %v", err)
	}
	if m.Journal.Identifier != "" {
		t.Errorf("identifier = %q, want absent", m.Journal.Identifier)
	}
}

func TestParseLegacyOneLine(t *testing.T) {
	dir := t.TempDir()
	path := writeManifestFile(t, dir, "greet", "# wrapper for echo\n\necho 'hello world' base\n")
	m, err := ParseFile(path)
	if err != nil {
		t.Fatalf("ParseFile: %v", err)
	}
	if m.Exec != "echo" {
		t.Errorf("exec = %q", m.Exec)
	}
	if want := []string{"hello world", "base"}; !reflect.DeepEqual(m.Args, want) {
		t.Errorf("args = %v, want %v", m.Args, want)
	}
}

func TestParseLegacyAllCommentsFails(t *testing.T) {
	dir := t.TempDir()
	path := writeManifestFile(t, dir, "greet.conf", "# nothing\n\n# here\n")
	if _, err := ParseFile(path); err == nil {
		t.Fatal("expected error for comment-only legacy file")
	}
}

func TestSerializeRoundTrip(t *testing.T) {
	interval := uint64(5_000_000)
	burst := uint32(200)
	m := &Manifest{
		Exec:      "/usr/bin/deploy",
		Args:      []string{"--stage", "prod"},
		EnvSet:    map[string]string{"REGION": "eu", "TIER": "web"},
		EnvRemove: []string{"DEBUG", "TRACE"},
		Journal: &Journal{
			Namespace:     "u1000-deploy",
			StderrEnabled: true,
			Identifier:    "deploy",
			Ensure:        true,
			Policy: &Policy{
				MaxUse:                "128M",
				RateLimitIntervalUsec: &interval,
				RateLimitBurst:        &burst,
			},
		},
		Reconcile: &Reconcile{ScriptPath: "/opt/hooks/deploy.tengo", FunctionName: "reconcile"},
		Bashcomp:  &Bashcomp{ScriptPath: "/opt/hooks/deploy.tengo", FunctionName: "complete"},
	}

	out, err := Serialize(m)
	if err != nil {
		t.Fatalf("Serialize: %v", err)
	}
	dir := t.TempDir()
	path := writeManifestFile(t, dir, "deploy.toml", string(out))
	got, err := ParseFile(path)
	if err != nil {
		t.Fatalf("ParseFile: %v", err)
	}
	if !reflect.DeepEqual(got, m) {
		t.Errorf("round-trip mismatch:\n got %+v\nwant %+v", got, m)
	}
}

func TestWriteFileAtomic(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "aliases", "x.toml")
	m := &Manifest{Exec: "true", Args: []string{}, EnvSet: map[string]string{}}
	if err := WriteFile(path, m); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	got, err := ParseFile(path)
	if err != nil {
		t.Fatalf("ParseFile: %v", err)
	}
	if got.Exec != "true" {
		t.Errorf("exec = %q", got.Exec)
	}
	entries, err := os.ReadDir(filepath.Dir(path))
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range entries {
		if strings.Contains(e.Name(), ".tmp-") {
			t.Errorf("leftover temp file %s", e.Name())
		}
	}
}

func TestWriteFileRejectsInvalidManifest(t *testing.T) {
	dir := t.TempDir()
	m := &Manifest{Exec: "true", EnvSet: map[string]string{"A=B": "x"}}
	if err := WriteFile(filepath.Join(dir, "x.toml"), m); err == nil {
		t.Fatal("expected invariant violation error")
	}
}
