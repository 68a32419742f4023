// Package executor runs the final invocation: either replacing the
// current process image outright, or spawning the child with its stderr
// pumped into a journal tagging sidecar.
package executor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"syscall"

	"go.opentelemetry.io/otel"
	"golang.org/x/sync/errgroup"

	"github.com/chopper-cli/chopper/internal/manifest"
	"github.com/chopper-cli/chopper/internal/validate"
)

// DefaultSidecar is the stderr tagging tool. It must support
// --namespace (systemd v256+).
const DefaultSidecar = "systemd-cat"

// ErrSidecarIncompatible marks a sidecar that exited non-zero; the usual
// cause is a systemd-cat too old to know --namespace.
var ErrSidecarIncompatible = errors.New("journal tagging sidecar failed; install systemd v256+ with systemd-cat --namespace support")

// ChildExit carries the child's termination so the caller can mirror it
// as the process exit status.
type ChildExit struct {
	// Code is the value to pass to os.Exit: the child's exit code, or
	// 128+signal for a signal-terminated child.
	Code int
}

func (e *ChildExit) Error() string {
	return fmt.Sprintf("child exited with status %d", e.Code)
}

// Executor runs invocations. The zero value is not usable; NewExecutor
// wires the process-standard streams and the default sidecar.
type Executor struct {
	SidecarPath string

	Stdin  *os.File
	Stdout *os.File
	Stderr *os.File
}

func NewExecutor() *Executor {
	return &Executor{
		SidecarPath: DefaultSidecar,
		Stdin:       os.Stdin,
		Stdout:      os.Stdout,
		Stderr:      os.Stderr,
	}
}

// Run executes inv. In direct mode (no journal, or stderr tagging
// disabled) it replaces the current process image and only returns on
// failure. In tagged mode it returns nil for a zero child exit, a
// *ChildExit for any other child termination, or another error for
// executor-level failures.
func (e *Executor) Run(ctx context.Context, inv manifest.Invocation) error {
	if err := validateJournal(inv.Journal); err != nil {
		return err
	}
	if inv.Journal != nil && inv.Journal.StderrEnabled {
		return e.runTagged(ctx, inv, *inv.Journal)
	}
	return e.runDirect(inv)
}

// validateJournal applies the invocation-time rules: a present-but-blank
// identifier is rejected here even though the config parser collapses it
// to absent.
func validateJournal(j *manifest.Journal) error {
	if j == nil {
		return nil
	}
	if _, err := validate.NotBlank("journal namespace", j.Namespace); err != nil {
		return err
	}
	if j.Identifier != "" && strings.TrimSpace(j.Identifier) == "" {
		return fmt.Errorf("journal identifier cannot be blank")
	}
	return validate.NoNUL("journal identifier", j.Identifier)
}

// runDirect replaces the process image. On success it never returns.
func (e *Executor) runDirect(inv manifest.Invocation) error {
	path, err := exec.LookPath(inv.Exec)
	if err != nil {
		return fmt.Errorf("resolving %q: %w", inv.Exec, err)
	}
	argv := append([]string{path}, inv.Args...)
	env := MergedEnviron(os.Environ(), inv.EnvSet, inv.EnvRemove)
	if err := syscall.Exec(path, argv, env); err != nil {
		return fmt.Errorf("exec %q failed: %w", path, err)
	}
	return nil
}

// runTagged spawns the child with piped stderr, pumps those bytes into
// the tagging sidecar, and mirrors the child's termination. The pump is
// joined after the child wait and before the sidecar wait, so the
// sidecar sees EOF only once every child stderr byte is flushed.
func (e *Executor) runTagged(ctx context.Context, inv manifest.Invocation, journal manifest.Journal) error {
	ctx, span := otel.Tracer("chopper/executor").Start(ctx, "executor.runTagged")
	defer span.End()

	child := exec.Command(inv.Exec, inv.Args...)
	child.Env = MergedEnviron(os.Environ(), inv.EnvSet, inv.EnvRemove)
	child.Stdin = e.Stdin
	child.Stdout = e.Stdout
	// A pipe of our own rather than StderrPipe: child.Wait must not close
	// the read end while the pump is still draining it.
	childStderr, childStderrW, err := os.Pipe()
	if err != nil {
		return fmt.Errorf("piping child stderr: %w", err)
	}
	child.Stderr = childStderrW

	sidecarArgs := []string{"--namespace=" + journal.Namespace}
	if journal.Identifier != "" {
		sidecarArgs = append(sidecarArgs, "--identifier="+journal.Identifier)
	}
	sidecar := exec.Command(e.SidecarPath, sidecarArgs...)
	sidecar.Stdout = nil
	sidecar.Stderr = e.Stderr
	sidecarStdin, err := sidecar.StdinPipe()
	if err != nil {
		return fmt.Errorf("piping sidecar stdin: %w", err)
	}

	if err := child.Start(); err != nil {
		childStderr.Close()
		childStderrW.Close()
		return fmt.Errorf("spawning %q: %w", inv.Exec, err)
	}
	childStderrW.Close()
	if err := sidecar.Start(); err != nil {
		// The child is already running; its effects are not rolled
		// back, only the exit status reflects the failure.
		childStderr.Close()
		child.Wait()
		return fmt.Errorf("spawning sidecar %q: %w (%v)", e.SidecarPath, err, ErrSidecarIncompatible)
	}

	// The pump is the sole writer into the sidecar; backpressure comes
	// from the sidecar's pipe buffer, which blocks the child naturally.
	var pump errgroup.Group
	pump.Go(func() error {
		_, copyErr := io.Copy(sidecarStdin, childStderr)
		childStderr.Close()
		closeErr := sidecarStdin.Close()
		if copyErr != nil {
			return fmt.Errorf("pumping child stderr into sidecar: %w", copyErr)
		}
		if closeErr != nil {
			return fmt.Errorf("closing sidecar stdin: %w", closeErr)
		}
		return nil
	})

	childErr := child.Wait()
	if pumpErr := pump.Wait(); pumpErr != nil {
		sidecar.Wait()
		return pumpErr
	}
	if sidecarErr := sidecar.Wait(); sidecarErr != nil {
		slog.DebugContext(ctx, "sidecar exited non-zero", "error", sidecarErr)
		return fmt.Errorf("%w: %v", ErrSidecarIncompatible, sidecarErr)
	}

	return mirrorChildExit(child, childErr)
}

// mirrorChildExit maps the child's termination onto the process exit:
// code as-is, 128+signal for signal deaths, anything else is an error.
func mirrorChildExit(child *exec.Cmd, waitErr error) error {
	if waitErr == nil {
		return nil
	}
	var exitErr *exec.ExitError
	if !errors.As(waitErr, &exitErr) {
		return fmt.Errorf("waiting for child: %w", waitErr)
	}
	ws, ok := child.ProcessState.Sys().(syscall.WaitStatus)
	if !ok {
		return fmt.Errorf("child terminated with neither exit code nor signal")
	}
	switch {
	case ws.Exited():
		return &ChildExit{Code: ws.ExitStatus()}
	case ws.Signaled():
		return &ChildExit{Code: 128 + int(ws.Signal())}
	default:
		return fmt.Errorf("child terminated with neither exit code nor signal")
	}
}

// MergedEnviron applies the invocation's environment delta to base:
// every envRemove key is dropped, then envSet entries are layered on
// top, replacing any existing definition.
func MergedEnviron(base []string, envSet map[string]string, envRemove []string) []string {
	removed := make(map[string]struct{}, len(envRemove)+len(envSet))
	for _, k := range envRemove {
		removed[k] = struct{}{}
	}
	for k := range envSet {
		removed[k] = struct{}{}
	}

	out := make([]string, 0, len(base)+len(envSet))
	for _, kv := range base {
		k, _, ok := strings.Cut(kv, "=")
		if !ok {
			continue
		}
		if _, drop := removed[k]; drop {
			continue
		}
		out = append(out, kv)
	}
	for k, v := range envSet {
		out = append(out, k+"="+v)
	}
	return out
}
