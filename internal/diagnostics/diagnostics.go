// Package diagnostics sweeps the configuration root for problems an
// operator would want to know about: files with suspicious extensions
// and manifests whose targets are missing on disk. It is read-only and
// takes no part in the invocation pipeline.
package diagnostics

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/chopper-cli/chopper/internal/manifest"
)

// ScanExtensionWarnings reports files in configRoot (and its aliases/
// subdirectory) whose extensions match neither dialect: not .toml, not
// .tengo, not .conf, and not an extensionless legacy file.
func ScanExtensionWarnings(configRoot string) []string {
	var warnings []string
	collectExtensionWarnings(filepath.Join(configRoot, "aliases"), &warnings)
	collectExtensionWarnings(configRoot, &warnings)
	sort.Strings(warnings)
	return dedupe(warnings)
}

func collectExtensionWarnings(dir string, warnings *[]string) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return
		}
		*warnings = append(*warnings, fmt.Sprintf("could not scan %s: %v", dir, err))
		return
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		switch ext {
		case "", ".toml", ".tengo", ".conf":
			continue
		}
		*warnings = append(*warnings, fmt.Sprintf(
			"suspicious config file extension (expected .toml/.tengo/.conf): %s",
			filepath.Join(dir, entry.Name())))
	}
}

// ManifestMissingTargetWarnings reports manifest targets that do not
// exist on disk: an explicit exec path, the reconcile script, or the
// completion script. Bare exec names are left to path lookup and never
// warned about.
func ManifestMissingTargetWarnings(m *manifest.Manifest) []string {
	var warnings []string
	if strings.ContainsRune(m.Exec, os.PathSeparator) {
		if _, err := os.Stat(m.Exec); err != nil {
			warnings = append(warnings, fmt.Sprintf("exec target does not exist: %s", m.Exec))
		}
	}
	if m.Reconcile != nil {
		if _, err := os.Stat(m.Reconcile.ScriptPath); err != nil {
			warnings = append(warnings, fmt.Sprintf("reconcile script does not exist: %s", m.Reconcile.ScriptPath))
		}
	}
	if m.Bashcomp != nil && m.Bashcomp.ScriptPath != "" {
		if _, err := os.Stat(m.Bashcomp.ScriptPath); err != nil {
			warnings = append(warnings, fmt.Sprintf("completion script does not exist: %s", m.Bashcomp.ScriptPath))
		}
	}
	return warnings
}

func dedupe(sorted []string) []string {
	out := sorted[:0:0]
	for i, s := range sorted {
		if i > 0 && sorted[i-1] == s {
			continue
		}
		out = append(out, s)
	}
	return out
}
