// Package manifest holds the declarative per-alias record, the runtime
// patch a reconcile hook may return, and the deterministic invocation
// builder that composes the two into what actually gets exec'd.
package manifest

// Manifest is the authoritative in-memory record for one alias.
type Manifest struct {
	Exec      string
	Args      []string
	EnvSet    map[string]string
	EnvRemove []string
	Journal   *Journal
	Reconcile *Reconcile
	Bashcomp  *Bashcomp
}

// Journal is the optional stderr-tagging configuration for an alias.
type Journal struct {
	Namespace     string
	StderrEnabled bool
	Identifier    string
	UserScope     bool
	Ensure        bool
	Policy        *Policy
}

// Policy is the optional per-namespace quota/rate-limit request a
// manifest may carry; unset fields fall back to broker defaults.
type Policy struct {
	MaxUse                string
	RateLimitIntervalUsec *uint64
	RateLimitBurst        *uint32
}

// Reconcile names the script and function invoked to patch the
// invocation before exec.
type Reconcile struct {
	ScriptPath   string
	FunctionName string
}

// Bashcomp names the script and function invoked to produce shell
// completion candidates. Disabled suppresses completion entirely;
// Passthrough defers to the shell's defaults instead of the script.
type Bashcomp struct {
	Disabled     bool
	Passthrough  bool
	ScriptPath   string
	FunctionName string
}

// FunctionNameOrDefault returns FunctionName, defaulting to "complete".
func (b *Bashcomp) FunctionNameOrDefault() string {
	if b.FunctionName == "" {
		return "complete"
	}
	return b.FunctionName
}

// FunctionNameOrDefault returns FunctionName, defaulting to "reconcile".
func (r *Reconcile) FunctionNameOrDefault() string {
	if r.FunctionName == "" {
		return "reconcile"
	}
	return r.FunctionName
}

// Invocation is the immutable, total record handed to the executor.
type Invocation struct {
	Exec      string
	Args      []string
	EnvSet    map[string]string
	EnvRemove []string
	Journal   *Journal
}

// Patch is the shape a reconcile hook returns.
type Patch struct {
	ReplaceArgs []string // used only when HasReplace is set; may be empty
	HasReplace  bool     // replace_args was present, even as an empty list
	AppendArgs  []string
	SetEnv      map[string]string
	RemoveEnv   []string
}
