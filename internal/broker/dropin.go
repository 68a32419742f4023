package broker

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// DefaultRuntimeDir is where journald keeps per-namespace runtime state
// and where drop-ins for templated namespace units live.
const DefaultRuntimeDir = "/run/systemd"

// dropInDir returns the conf.d directory for a namespace's templated
// journald unit.
func dropInDir(runtimeDir, namespace string) string {
	return filepath.Join(runtimeDir, fmt.Sprintf("journald@%s.conf.d", namespace))
}

// WriteDropIn writes the chopper.conf drop-in for namespace: create the
// conf.d directory, write a sibling temp file, fsync, rename over the
// target.
func WriteDropIn(runtimeDir, namespace string, config DropInConfig) error {
	dir := dropInDir(runtimeDir, namespace)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating drop-in dir %s: %w", dir, err)
	}
	if err := os.Chmod(dir, 0o755); err != nil {
		return fmt.Errorf("setting permissions on %s: %w", dir, err)
	}

	target := filepath.Join(dir, "chopper.conf")
	tmp := filepath.Join(dir, ".chopper.conf.tmp")

	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("creating temp drop-in %s: %w", tmp, err)
	}
	if _, err := f.WriteString(RenderDropIn(config)); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("writing temp drop-in %s: %w", tmp, err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("syncing temp drop-in %s: %w", tmp, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("closing temp drop-in %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, target); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("finalizing drop-in %s: %w", target, err)
	}
	return nil
}

// RenderDropIn renders the [Journal] drop-in body. The interval renders
// in whole seconds when it divides evenly, else in microseconds.
func RenderDropIn(config DropInConfig) string {
	interval := fmt.Sprintf("%dus", config.RateLimitIntervalUsec)
	if config.RateLimitIntervalUsec%1_000_000 == 0 {
		interval = fmt.Sprintf("%ds", config.RateLimitIntervalUsec/1_000_000)
	}
	var b strings.Builder
	b.WriteString("# Managed by chopper-journal-broker. Do not edit.\n")
	b.WriteString("[Journal]\n")
	fmt.Fprintf(&b, "SystemMaxUse=%s\n", config.SystemMaxUse)
	fmt.Fprintf(&b, "RateLimitIntervalSec=%s\n", interval)
	fmt.Fprintf(&b, "RateLimitBurst=%d\n", config.RateLimitBurst)
	return b.String()
}

// CountActiveNamespaces counts runtime directories for uid, i.e.
// entries of runtimeDir named journal.u<uid>-*.
func CountActiveNamespaces(runtimeDir string, uid uint32) (int, error) {
	entries, err := os.ReadDir(runtimeDir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("reading %s: %w", runtimeDir, err)
	}
	prefix := fmt.Sprintf("journal.u%d-", uid)
	count := 0
	for _, entry := range entries {
		if entry.IsDir() && strings.HasPrefix(entry.Name(), prefix) {
			count++
		}
	}
	return count, nil
}

// NamespaceActive reports whether the namespace's runtime directory
// exists.
func NamespaceActive(runtimeDir, namespace string) bool {
	info, err := os.Stat(filepath.Join(runtimeDir, "journal."+namespace))
	return err == nil && info.IsDir()
}
