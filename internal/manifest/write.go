package manifest

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/pelletier/go-toml/v2"

	"github.com/chopper-cli/chopper/internal/validate"
)

// Serialize renders m in the structured TOML dialect. The output parses
// back to a semantically equal manifest.
func Serialize(m *Manifest) ([]byte, error) {
	if err := checkInvariants(m); err != nil {
		return nil, err
	}

	d := doc{
		Exec:      m.Exec,
		Args:      m.Args,
		EnvSet:    m.EnvSet,
		EnvRemove: m.EnvRemove,
	}
	if m.Journal != nil {
		stderrEnabled := m.Journal.StderrEnabled
		d.Journal = &journalDoc{
			Namespace:     m.Journal.Namespace,
			StderrEnabled: &stderrEnabled,
			Identifier:    m.Journal.Identifier,
			UserScope:     m.Journal.UserScope,
			Ensure:        m.Journal.Ensure,
		}
		if m.Journal.Policy != nil {
			d.Journal.Policy = &policyDoc{
				MaxUse:                m.Journal.Policy.MaxUse,
				RateLimitIntervalUsec: m.Journal.Policy.RateLimitIntervalUsec,
				RateLimitBurst:        m.Journal.Policy.RateLimitBurst,
			}
		}
	}
	if m.Reconcile != nil {
		d.Reconcile = &reconcileDoc{
			ScriptPath:   m.Reconcile.ScriptPath,
			FunctionName: m.Reconcile.FunctionName,
		}
	}
	if m.Bashcomp != nil {
		d.Bashcomp = &bashcompDoc{
			Disabled:     m.Bashcomp.Disabled,
			Passthrough:  m.Bashcomp.Passthrough,
			ScriptPath:   m.Bashcomp.ScriptPath,
			FunctionName: m.Bashcomp.FunctionName,
		}
	}

	out, err := toml.Marshal(d)
	if err != nil {
		return nil, fmt.Errorf("serializing manifest: %w", err)
	}
	return out, nil
}

// WriteFile serializes m and persists it at path with create+rename
// atomicity: the bytes land in a temp file in the target directory, then
// a rename replaces the target.
func WriteFile(path string, m *Manifest) error {
	out, err := Serialize(m)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating manifest directory: %w", err)
	}
	tmp := path + fmt.Sprintf(".tmp-%d", os.Getpid())
	if err := os.WriteFile(tmp, out, 0o644); err != nil {
		return fmt.Errorf("writing temporary manifest file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("finalizing manifest file: %w", err)
	}
	return nil
}

// checkInvariants rejects a manifest that could not have come out of a
// successful parse.
func checkInvariants(m *Manifest) error {
	if _, err := validate.NotBlank("exec", m.Exec); err != nil {
		return err
	}
	for k, v := range m.EnvSet {
		if _, err := validate.EnvKey(k); err != nil {
			return err
		}
		if err := validate.EnvValue(v); err != nil {
			return err
		}
	}
	for _, k := range m.EnvRemove {
		if _, err := validate.EnvKey(k); err != nil {
			return err
		}
	}
	if m.Journal != nil {
		if _, err := validate.NotBlank("journal.namespace", m.Journal.Namespace); err != nil {
			return err
		}
		if err := validate.NoNUL("journal.identifier", m.Journal.Identifier); err != nil {
			return err
		}
	}
	if m.Reconcile != nil {
		if _, err := validate.Path("reconcile.script_path", m.Reconcile.ScriptPath); err != nil {
			return err
		}
	}
	return nil
}
