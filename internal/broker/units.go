package broker

import (
	"context"
	"fmt"
	"os/exec"
)

// UnitStarter starts the runtime units backing a namespace.
type UnitStarter interface {
	StartNamespaceUnits(ctx context.Context, namespace string) error
}

// SystemctlStarter shells out to systemctl to start the namespace's
// socket unit and varlink socket unit.
type SystemctlStarter struct {
	// Path overrides the systemctl binary; empty means "systemctl".
	Path string
}

func (s SystemctlStarter) StartNamespaceUnits(ctx context.Context, namespace string) error {
	systemctl := s.Path
	if systemctl == "" {
		systemctl = "systemctl"
	}
	socketUnit := fmt.Sprintf("systemd-journald@%s.socket", namespace)
	varlinkUnit := fmt.Sprintf("systemd-journald-varlink@%s.socket", namespace)

	cmd := exec.CommandContext(ctx, systemctl, "start", socketUnit, varlinkUnit)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("systemctl start failed for namespace %q: %w (%s)", namespace, err, out)
	}
	return nil
}
