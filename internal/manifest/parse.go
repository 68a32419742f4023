package manifest

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/shlex"
	"github.com/pelletier/go-toml/v2"

	"github.com/chopper-cli/chopper/internal/validate"
)

const bom = "\xef\xbb\xbf"

// doc is the on-disk shape of the structured TOML dialect. The toml tags
// carry the dialect's own snake_case keys.
type doc struct {
	Exec      string            `toml:"exec"`
	Args      []string          `toml:"args"`
	EnvSet    map[string]string `toml:"env_set"`
	EnvRemove []string          `toml:"env_remove"`
	Journal   *journalDoc       `toml:"journal"`
	Reconcile *reconcileDoc     `toml:"reconcile"`
	Bashcomp  *bashcompDoc      `toml:"bashcomp"`
}

type journalDoc struct {
	Namespace     string     `toml:"namespace"`
	StderrEnabled *bool      `toml:"stderr_enabled"`
	Identifier    string     `toml:"identifier"`
	UserScope     bool       `toml:"user_scope"`
	Ensure        bool       `toml:"ensure"`
	Policy        *policyDoc `toml:"policy"`
}

type policyDoc struct {
	MaxUse                string  `toml:"max_use"`
	RateLimitIntervalUsec *uint64 `toml:"rate_limit_interval_usec"`
	RateLimitBurst        *uint32 `toml:"rate_limit_burst"`
}

type reconcileDoc struct {
	ScriptPath   string `toml:"script_path"`
	FunctionName string `toml:"function_name"`
}

type bashcompDoc struct {
	Disabled     bool   `toml:"disabled"`
	Passthrough  bool   `toml:"passthrough"`
	ScriptPath   string `toml:"script_path"`
	FunctionName string `toml:"function_name"`
}

// ParseFile reads sourcePath and decodes it as either the structured
// TOML dialect or, when the extension is not .toml, the legacy
// one-line dialect. Relative script paths are resolved against the
// manifest source file's canonical (symlink-followed) parent directory.
func ParseFile(sourcePath string) (*Manifest, error) {
	raw, err := os.ReadFile(sourcePath)
	if err != nil {
		return nil, fmt.Errorf("reading manifest %s: %w", sourcePath, err)
	}

	dir, err := canonicalParentDir(sourcePath)
	if err != nil {
		return nil, fmt.Errorf("resolving parent of %s: %w", sourcePath, err)
	}

	if strings.EqualFold(filepath.Ext(sourcePath), ".toml") {
		return parseStructured(raw, dir)
	}
	return parseLegacy(raw)
}

func canonicalParentDir(sourcePath string) (string, error) {
	resolved, err := filepath.EvalSymlinks(sourcePath)
	if err != nil {
		// Source may not exist yet (write path); fall back to the
		// literal parent.
		return filepath.Dir(sourcePath), nil
	}
	return filepath.Dir(resolved), nil
}

func stripBOM(raw []byte) []byte {
	return bytes.TrimPrefix(raw, []byte(bom))
}

func parseStructured(raw []byte, scriptDir string) (*Manifest, error) {
	raw = stripBOM(raw)

	var d doc
	if err := toml.Unmarshal(raw, &d); err != nil {
		return nil, fmt.Errorf("parsing structured manifest: %w", err)
	}

	exec, err := validate.NotBlank("exec", d.Exec)
	if err != nil {
		return nil, err
	}

	m := &Manifest{
		Exec: exec,
		Args: append([]string{}, d.Args...),
	}

	envSet, err := normalizeEnvSet(d.EnvSet)
	if err != nil {
		return nil, err
	}
	m.EnvSet = envSet

	envRemove, err := normalizeEnvKeys(d.EnvRemove)
	if err != nil {
		return nil, err
	}
	m.EnvRemove = envRemove

	if d.Journal != nil {
		j, err := decodeJournal(d.Journal)
		if err != nil {
			return nil, err
		}
		m.Journal = j
	}

	if d.Reconcile != nil {
		if _, err := validate.Path("reconcile.script_path", d.Reconcile.ScriptPath); err != nil {
			return nil, err
		}
		m.Reconcile = &Reconcile{
			ScriptPath:   resolveScriptPath(scriptDir, d.Reconcile.ScriptPath),
			FunctionName: d.Reconcile.FunctionName,
		}
	}

	if d.Bashcomp != nil {
		scriptPath := d.Bashcomp.ScriptPath
		if scriptPath != "" {
			scriptPath = resolveScriptPath(scriptDir, scriptPath)
		}
		m.Bashcomp = &Bashcomp{
			Disabled:     d.Bashcomp.Disabled,
			Passthrough:  d.Bashcomp.Passthrough,
			ScriptPath:   scriptPath,
			FunctionName: d.Bashcomp.FunctionName,
		}
	}

	return m, nil
}

func resolveScriptPath(scriptDir, path string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(scriptDir, path)
}

func decodeJournal(d *journalDoc) (*Journal, error) {
	ns, err := validate.NotBlank("journal.namespace", d.Namespace)
	if err != nil {
		return nil, err
	}
	stderrEnabled := true
	if d.StderrEnabled != nil {
		stderrEnabled = *d.StderrEnabled
	}

	// Present-but-whitespace-only collapses to absent here; the
	// invocation path instead rejects a blank identifier outright.
	// The divergence is intentional.
	identifier := strings.TrimSpace(d.Identifier)

	j := &Journal{
		Namespace:     ns,
		StderrEnabled: stderrEnabled,
		Identifier:    identifier,
		UserScope:     d.UserScope,
		Ensure:        d.Ensure,
	}
	if d.Policy != nil {
		j.Policy = &Policy{
			MaxUse:                d.Policy.MaxUse,
			RateLimitIntervalUsec: d.Policy.RateLimitIntervalUsec,
			RateLimitBurst:        d.Policy.RateLimitBurst,
		}
	}
	return j, nil
}

func normalizeEnvSet(in map[string]string) (map[string]string, error) {
	out := make(map[string]string, len(in))
	seen := make(map[string]struct{}, len(in))
	// Iterate in sorted key order so duplicate-after-trim detection is
	// deterministic regardless of map iteration order.
	keys := make([]string, 0, len(in))
	for k := range in {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, rawKey := range keys {
		key, err := validate.EnvKey(rawKey)
		if err != nil {
			return nil, err
		}
		if _, dup := seen[key]; dup {
			return nil, fmt.Errorf("duplicate env key after trimming: %q", key)
		}
		seen[key] = struct{}{}
		if err := validate.EnvValue(in[rawKey]); err != nil {
			return nil, err
		}
		out[key] = in[rawKey]
	}
	return out, nil
}

func normalizeEnvKeys(in []string) ([]string, error) {
	out := make([]string, 0, len(in))
	for _, rawKey := range in {
		key, err := validate.EnvKey(rawKey)
		if err != nil {
			return nil, err
		}
		out = append(out, key)
	}
	return out, nil
}

// parseLegacy tokenizes the first non-blank, non-comment line of raw
// with shell-word rules into [exec, args...]. A file consisting solely
// of blank/comment lines fails.
func parseLegacy(raw []byte) (*Manifest, error) {
	text := string(stripBOM(raw))
	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			continue
		}
		words, err := shlex.Split(trimmed)
		if err != nil {
			return nil, fmt.Errorf("tokenizing legacy manifest line: %w", err)
		}
		if len(words) == 0 {
			return nil, fmt.Errorf("legacy manifest line has no tokens")
		}
		exec, err := validate.NotBlank("exec", words[0])
		if err != nil {
			return nil, err
		}
		return &Manifest{
			Exec:      exec,
			Args:      words[1:],
			EnvSet:    map[string]string{},
			EnvRemove: nil,
		}, nil
	}
	return nil, fmt.Errorf("legacy manifest has no non-blank, non-comment line")
}
