// Package brokerclient is the unprivileged IPC stub that asks the
// journal namespace broker to provision a namespace over the system
// bus.
package brokerclient

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/godbus/dbus/v5"

	"github.com/chopper-cli/chopper/internal/manifest"
)

// The broker's bus surface, mirrored from the daemon side.
const (
	busName       = "com.chopperproject.JournalBroker1"
	objectPath    = dbus.ObjectPath("/com/chopperproject/JournalBroker1")
	interfaceName = "com.chopperproject.JournalBroker1"
)

// Typed remote failures, remapped from the broker's wire errors.
var (
	ErrAccessDenied   = errors.New("journal namespace broker denied access")
	ErrLimitsExceeded = errors.New("journal namespace broker: namespace limit exceeded")
)

// Ensurer provisions a namespace; the production implementation talks
// D-Bus, tests substitute a fake.
type Ensurer interface {
	EnsureNamespace(ctx context.Context, namespace string, policy *manifest.Policy) error
}

// Client calls the broker daemon on the system bus.
type Client struct{}

// Options flattens a manifest policy block into the string mapping the
// broker accepts. Absent fields are omitted; the broker applies its
// defaults.
func Options(policy *manifest.Policy) map[string]string {
	options := map[string]string{}
	if policy == nil {
		return options
	}
	if policy.MaxUse != "" {
		options["max_use"] = policy.MaxUse
	}
	if policy.RateLimitIntervalUsec != nil {
		options["rate_limit_interval_usec"] = strconv.FormatUint(*policy.RateLimitIntervalUsec, 10)
	}
	if policy.RateLimitBurst != nil {
		options["rate_limit_burst"] = strconv.FormatUint(uint64(*policy.RateLimitBurst), 10)
	}
	return options
}

// EnsureNamespace invokes EnsureNamespace(namespace, options) on the
// broker's well-known name and remaps its typed failures.
func (Client) EnsureNamespace(ctx context.Context, namespace string, policy *manifest.Policy) error {
	conn, err := dbus.ConnectSystemBus()
	if err != nil {
		return fmt.Errorf("connecting to system bus (is dbus running, and is chopper-journal-broker installed?): %w", err)
	}
	defer conn.Close()

	call := conn.Object(busName, objectPath).CallWithContext(
		ctx, interfaceName+".EnsureNamespace", 0, namespace, Options(policy))
	if call.Err != nil {
		return remapError(call.Err, namespace)
	}
	return nil
}

// remapError identifies the two typed remote errors by name and tags
// everything with the offending namespace.
func remapError(err error, namespace string) error {
	var busErr dbus.Error
	if !errors.As(err, &busErr) {
		return fmt.Errorf("journal namespace broker call failed for %q: %w", namespace, err)
	}

	detail := busErr.Name
	if len(busErr.Body) > 0 {
		if text, ok := busErr.Body[0].(string); ok {
			detail = text
		}
	}
	switch {
	case strings.Contains(busErr.Name, "AccessDenied"):
		return fmt.Errorf("%w for %q: %s", ErrAccessDenied, namespace, detail)
	case strings.Contains(busErr.Name, "LimitsExceeded"):
		return fmt.Errorf("%w for %q: %s", ErrLimitsExceeded, namespace, detail)
	case strings.Contains(busErr.Name, "UnknownMethod"), strings.Contains(busErr.Name, "ServiceUnknown"):
		return fmt.Errorf("journal namespace broker unavailable for %q (install a compatible chopper-journal-broker): %s", namespace, detail)
	default:
		return fmt.Errorf("journal namespace broker failed for %q: [%s] %s", namespace, busErr.Name, detail)
	}
}
