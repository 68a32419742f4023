package executor

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/creack/pty"

	"github.com/chopper-cli/chopper/internal/manifest"
)

// fakeSidecar writes a shell script that stands in for systemd-cat and
// runs body as its script.
func fakeSidecar(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, "sidecar.sh")
	script := "#!/bin/sh\n" + body + "\n"
	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		t.Fatal(err)
	}
	return path
}

func testExecutor(sidecar string) *Executor {
	e := NewExecutor()
	e.SidecarPath = sidecar
	return e
}

func journalInvocation(exec string, args ...string) manifest.Invocation {
	return manifest.Invocation{
		Exec: exec,
		Args: args,
		Journal: &manifest.Journal{
			Namespace:     "u1000-test",
			StderrEnabled: true,
		},
	}
}

func TestTaggedModeMirrorsChildExitCode(t *testing.T) {
	dir := t.TempDir()
	sidecar := fakeSidecar(t, dir, "cat >/dev/null")
	e := testExecutor(sidecar)

	err := e.Run(context.Background(), journalInvocation("sh", "-c", "exit 7"))
	var exit *ChildExit
	if !errors.As(err, &exit) {
		t.Fatalf("err = %v, want *ChildExit", err)
	}
	if exit.Code != 7 {
		t.Errorf("code = %d, want 7", exit.Code)
	}
}

func TestTaggedModeMirrorsChildSignal(t *testing.T) {
	dir := t.TempDir()
	sidecar := fakeSidecar(t, dir, "cat >/dev/null")
	e := testExecutor(sidecar)

	err := e.Run(context.Background(), journalInvocation("sh", "-c", "kill -KILL $$"))
	var exit *ChildExit
	if !errors.As(err, &exit) {
		t.Fatalf("err = %v, want *ChildExit", err)
	}
	if exit.Code != 137 {
		t.Errorf("code = %d, want 137 (128+SIGKILL)", exit.Code)
	}
}

func TestTaggedModeZeroExitReturnsNil(t *testing.T) {
	dir := t.TempDir()
	sidecar := fakeSidecar(t, dir, "cat >/dev/null")
	e := testExecutor(sidecar)

	if err := e.Run(context.Background(), journalInvocation("true")); err != nil {
		t.Fatalf("Run: %v", err)
	}
}

func TestTaggedModePumpsAllStderrBeforeSidecarEOF(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "captured")
	t.Setenv("SIDECAR_OUT", out)
	sidecar := fakeSidecar(t, dir, `cat > "$SIDECAR_OUT"`)
	e := testExecutor(sidecar)

	err := e.Run(context.Background(), journalInvocation("sh", "-c", "printf 'line one\\nline two\\n' >&2"))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	raw, readErr := os.ReadFile(out)
	if readErr != nil {
		t.Fatalf("reading sidecar capture: %v", readErr)
	}
	if want := "line one\nline two\n"; string(raw) != want {
		t.Errorf("sidecar saw %q, want %q", raw, want)
	}
}

func TestTaggedModeSidecarFailureIsFatalRegardlessOfChild(t *testing.T) {
	dir := t.TempDir()
	sidecar := fakeSidecar(t, dir, "cat >/dev/null; exit 3")
	e := testExecutor(sidecar)

	err := e.Run(context.Background(), journalInvocation("true"))
	if !errors.Is(err, ErrSidecarIncompatible) {
		t.Fatalf("err = %v, want ErrSidecarIncompatible", err)
	}
}

func TestTaggedModeSpawnFailure(t *testing.T) {
	dir := t.TempDir()
	sidecar := fakeSidecar(t, dir, "cat >/dev/null")
	e := testExecutor(sidecar)

	err := e.Run(context.Background(), journalInvocation(filepath.Join(dir, "no-such-binary")))
	if err == nil {
		t.Fatal("expected spawn failure")
	}
	var exit *ChildExit
	if errors.As(err, &exit) {
		t.Fatalf("spawn failure should not be a ChildExit, got %v", err)
	}
}

func TestRunRejectsBlankJournalIdentifier(t *testing.T) {
	e := NewExecutor()
	inv := manifest.Invocation{
		Exec: "true",
		Journal: &manifest.Journal{
			Namespace:     "u1000-test",
			StderrEnabled: true,
			Identifier:    "   ",
		},
	}
	if err := e.Run(context.Background(), inv); err == nil {
		t.Fatal("expected error for blank journal identifier")
	}
}

func TestRunRejectsBlankNamespace(t *testing.T) {
	e := NewExecutor()
	inv := manifest.Invocation{
		Exec:    "true",
		Journal: &manifest.Journal{Namespace: " ", StderrEnabled: true},
	}
	if err := e.Run(context.Background(), inv); err == nil {
		t.Fatal("expected error for blank namespace")
	}
}

func TestTaggedModeInheritsStdoutThroughTTY(t *testing.T) {
	master, tty, err := pty.Open()
	if err != nil {
		t.Skipf("pty unavailable: %v", err)
	}
	defer master.Close()
	defer tty.Close()

	dir := t.TempDir()
	sidecar := fakeSidecar(t, dir, "cat >/dev/null")
	e := testExecutor(sidecar)
	e.Stdout = tty

	done := make(chan error, 1)
	go func() {
		done <- e.Run(context.Background(), journalInvocation("sh", "-c", "printf tty-ok"))
	}()

	buf := make([]byte, 32)
	master.SetReadDeadline(time.Now().Add(5 * time.Second))
	n, readErr := master.Read(buf)
	if readErr != nil {
		t.Fatalf("reading pty: %v", readErr)
	}
	if got := string(buf[:n]); !strings.Contains(got, "tty-ok") {
		t.Errorf("pty saw %q, want tty-ok", got)
	}
	if runErr := <-done; runErr != nil {
		t.Fatalf("Run: %v", runErr)
	}
}

func TestMergedEnviron(t *testing.T) {
	base := []string{"KEEP=1", "DROP=2", "REPLACE=old"}
	got := MergedEnviron(base, map[string]string{"REPLACE": "new", "ADD": "3"}, []string{"DROP"})
	sort.Strings(got)
	want := []string{"ADD=3", "KEEP=1", "REPLACE=new"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("MergedEnviron = %v, want %v", got, want)
	}
}

func TestMergedEnvironRemoveOnly(t *testing.T) {
	base := []string{"A=1", "B=2"}
	got := MergedEnviron(base, nil, []string{"A", "A", "MISSING"})
	if want := []string{"B=2"}; !reflect.DeepEqual(got, want) {
		t.Errorf("MergedEnviron = %v, want %v", got, want)
	}
}
