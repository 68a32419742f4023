// Package scripthost compiles and invokes the reconcile and completion
// hooks in a sandboxed Tengo VM. A host carries one of two capability
// profiles fixed at construction: the completion profile exposes only
// side-effect-free queries, the reconcile profile additionally exposes
// filesystem writes, process spawning, and network calls.
package scripthost

import (
	"context"
	"fmt"
	"os"
	"regexp"
	"sync"

	"github.com/d5/tengo/v2"

	"github.com/chopper-cli/chopper/internal/fingerprint"
)

// Profile selects the capability set a Host exposes to scripts. The
// profile is a construction-time property; there are no runtime
// capability checks inside the facade functions.
type Profile int

const (
	// Completion exposes platform queries and read-only filesystem
	// access only.
	Completion Profile = iota
	// Reconcile exposes the full facade: platform queries, filesystem
	// read/write, process spawn, HTTP fetch, and the SOAP helper.
	Reconcile
)

// registerFunc installs one capability group's functions into a script
// before compilation.
type registerFunc func(*tengo.Script) error

// groupsFor composes the capability groups for a profile.
func groupsFor(profile Profile) []registerFunc {
	switch profile {
	case Reconcile:
		return []registerFunc{
			registerPlatform,
			registerFSRead,
			registerFSWrite,
			registerProcess,
			registerHTTP,
			registerSOAP,
		}
	default:
		return []registerFunc{
			registerPlatform,
			registerFSRead,
		}
	}
}

// Host compiles hook scripts and caches the compiled form keyed by the
// script's source fingerprint and the target function name.
type Host struct {
	profile Profile

	mu       sync.Mutex
	compiled map[compileKey]*tengo.Compiled
}

type compileKey struct {
	fp       fingerprint.Fingerprint
	function string
}

// NewHost builds a host with the given capability profile.
func NewHost(profile Profile) *Host {
	return &Host{
		profile:  profile,
		compiled: map[compileKey]*tengo.Compiled{},
	}
}

// Profile reports the capability profile this host was built with.
func (h *Host) Profile() Profile { return h.profile }

const (
	ctxVar = "__chopper_ctx__"
	outVar = "__chopper_out__"
)

var functionNameRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Call invokes function in the script at scriptPath with contextValue
// as its single argument and returns the raw returned value. The
// compiled script is cached by (path, fingerprint, function); an edit
// to the script invalidates the cached form.
func (h *Host) Call(ctx context.Context, scriptPath, function string, contextValue map[string]any) (tengo.Object, error) {
	if !functionNameRe.MatchString(function) {
		return nil, fmt.Errorf("invalid hook function name %q", function)
	}

	compiled, err := h.compile(scriptPath, function)
	if err != nil {
		return nil, err
	}

	run := compiled.Clone()
	if err := run.Set(ctxVar, contextValue); err != nil {
		return nil, fmt.Errorf("binding hook context: %w", err)
	}
	if err := run.RunContext(ctx); err != nil {
		return nil, fmt.Errorf("hook function %q failed in %s: %w", function, scriptPath, err)
	}

	out := run.Get(outVar)
	if out == nil {
		return nil, fmt.Errorf("hook function %q in %s produced no result", function, scriptPath)
	}
	return out.Object(), nil
}

func (h *Host) compile(scriptPath, function string) (*tengo.Compiled, error) {
	fp, err := fingerprint.Of(scriptPath)
	if err != nil {
		return nil, fmt.Errorf("reading hook script %s: %w", scriptPath, err)
	}
	key := compileKey{fp: fp, function: function}

	h.mu.Lock()
	cached, ok := h.compiled[key]
	h.mu.Unlock()
	if ok {
		return cached, nil
	}

	src, err := os.ReadFile(scriptPath)
	if err != nil {
		return nil, fmt.Errorf("reading hook script %s: %w", scriptPath, err)
	}

	// The script defines the hook as a top-level function value; a
	// trailing call binds its result to a well-known output variable.
	full := append(src, []byte("\n"+outVar+" := "+function+"("+ctxVar+")\n")...)

	script := tengo.NewScript(full)
	if err := script.Add(ctxVar, nil); err != nil {
		return nil, fmt.Errorf("declaring hook context: %w", err)
	}
	for _, register := range groupsFor(h.profile) {
		if err := register(script); err != nil {
			return nil, fmt.Errorf("registering hook facade: %w", err)
		}
	}

	compiled, err := script.Compile()
	if err != nil {
		return nil, fmt.Errorf("compiling hook script %s: %w", scriptPath, err)
	}

	h.mu.Lock()
	h.compiled[key] = compiled
	h.mu.Unlock()
	return compiled, nil
}
