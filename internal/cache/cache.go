// Package cache memoizes parsed manifests keyed by their source
// fingerprint. Entries live one-per-alias under manifests/<name>.bin in
// the per-user cache root. A decode failure of any kind is a silent
// miss: the entry is ignored, never deleted.
package cache

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/chopper-cli/chopper/internal/fingerprint"
	"github.com/chopper-cli/chopper/internal/manifest"
)

// RootEnv overrides the per-user cache root when set.
const RootEnv = "CHOPPER_CACHE_HOME"

type entry struct {
	Fingerprint fingerprint.Fingerprint
	Manifest    manifest.Manifest
}

// Root returns the cache root: the environment override when set and
// non-blank, else a platform-standard per-user cache directory.
func Root() (string, error) {
	if override := strings.TrimSpace(os.Getenv(RootEnv)); override != "" {
		return override, nil
	}
	base, err := os.UserCacheDir()
	if err != nil {
		return "", fmt.Errorf("resolving user cache directory: %w", err)
	}
	return filepath.Join(base, "chopper"), nil
}

// Load returns the cached manifest for alias iff a readable, decodable
// entry exists whose fingerprint matches fp exactly. Any other outcome
// is a miss.
func Load(root, alias string, fp fingerprint.Fingerprint) *manifest.Manifest {
	raw, err := os.ReadFile(entryPath(root, alias))
	if err != nil {
		return nil
	}
	var e entry
	if err := gob.NewDecoder(bytes.NewReader(raw)).Decode(&e); err != nil {
		return nil
	}
	if !e.Fingerprint.Matches(fp) {
		return nil
	}
	return &e.Manifest
}

// Store persists m for alias under fp. The entry is written to a
// process-unique temp path beside the target, then renamed into place.
func Store(root, alias string, fp fingerprint.Fingerprint, m *manifest.Manifest) error {
	path := entryPath(root, alias)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating cache directory: %w", err)
	}

	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(entry{Fingerprint: fp, Manifest: *m}); err != nil {
		return fmt.Errorf("encoding cache entry for %q: %w", alias, err)
	}

	tmp := fmt.Sprintf("%s.tmp-%d", path, os.Getpid())
	if err := os.WriteFile(tmp, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("writing temporary cache file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("finalizing cache file for %q: %w", alias, err)
	}
	return nil
}

// entryPath derives the on-disk entry location from the alias name with
// path-separator-safe substitution.
func entryPath(root, alias string) string {
	safe := strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', ' ':
			return '_'
		}
		return r
	}, alias)
	return filepath.Join(root, "manifests", safe+".bin")
}
