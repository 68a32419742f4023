// Package resolver maps an invoked executable name to the configuration
// file that defines it, if any.
package resolver

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/chopper-cli/chopper/internal/validate"
)

// ConfigRootEnv overrides the per-user configuration root when set.
const ConfigRootEnv = "CHOPPER_CONFIG_HOME"

// ConfigRoot returns the per-user configuration root: the environment
// override when set and non-blank, else a platform-standard per-user
// config directory.
func ConfigRoot() (string, error) {
	if override := strings.TrimSpace(os.Getenv(ConfigRootEnv)); override != "" {
		return override, nil
	}
	base, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("resolving user config directory: %w", err)
	}
	return filepath.Join(base, "chopper"), nil
}

// Resolve probes root for a configuration matching name, in order:
// aliases/<name>.toml, <name>.toml, then the legacy <name> and
// <name>.conf. The first existing path wins. An empty return with nil
// error means "no configuration": the caller treats the name as a bare
// executable.
func Resolve(root, name string) (string, error) {
	if err := validate.Alias(name); err != nil {
		return "", err
	}
	candidates := []string{
		filepath.Join(root, "aliases", name+".toml"),
		filepath.Join(root, name+".toml"),
		filepath.Join(root, name),
		filepath.Join(root, name+".conf"),
	}
	for _, candidate := range candidates {
		info, err := os.Stat(candidate)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return "", fmt.Errorf("probing %s: %w", candidate, err)
		}
		if info.IsDir() {
			continue
		}
		return candidate, nil
	}
	return "", nil
}
