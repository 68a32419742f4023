package broker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/godbus/dbus/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const (
	// BusName is the broker's well-known name on the system bus.
	BusName = "com.chopperproject.JournalBroker1"
	// ObjectPath is the broker's object path.
	ObjectPath dbus.ObjectPath = "/com/chopperproject/JournalBroker1"
	// InterfaceName is the broker's D-Bus interface.
	InterfaceName = "com.chopperproject.JournalBroker1"

	errNameAccessDenied   = "org.freedesktop.DBus.Error.AccessDenied"
	errNameLimitsExceeded = "org.freedesktop.DBus.Error.LimitsExceeded"
	errNameFailed         = "org.freedesktop.DBus.Error.Failed"
)

// Typed request outcomes; the D-Bus layer maps them onto the wire error
// names above.
var (
	ErrAccessDenied   = errors.New("access denied")
	ErrLimitsExceeded = errors.New("limits exceeded")
)

// Daemon serves EnsureNamespace on the system bus. Per-request handlers
// share no mutable state; the racy per-uid quota read is by design (the
// cap is soft, and each drop-in write is idempotent).
type Daemon struct {
	RuntimeDir string
	Units      UnitStarter
	Audit      *AuditLog

	conn     busConn
	tracer   trace.Tracer
	shutdown chan struct{}
}

// busConn is the slice of *dbus.Conn the daemon needs; tests substitute
// a fake to drive EnsureNamespace without a real bus.
type busConn interface {
	GetConnectionUnixUser(sender string) (uint32, error)
}

type systemBusConn struct {
	conn *dbus.Conn
}

func (c systemBusConn) GetConnectionUnixUser(sender string) (uint32, error) {
	var uid uint32
	err := c.conn.BusObject().Call("org.freedesktop.DBus.GetConnectionUnixUser", 0, sender).Store(&uid)
	if err != nil {
		return 0, fmt.Errorf("resolving caller uid for %s: %w", sender, err)
	}
	return uid, nil
}

// NewDaemon builds a daemon with production defaults. The audit log is
// optional; a nil Audit disables recording.
func NewDaemon(audit *AuditLog) *Daemon {
	return &Daemon{
		RuntimeDir: DefaultRuntimeDir,
		Units:      SystemctlStarter{},
		Audit:      audit,
		tracer:     otel.Tracer("chopper/broker"),
		shutdown:   make(chan struct{}),
	}
}

// Serve connects to the system bus, exports the broker object, claims
// the well-known name, and blocks until a termination signal or
// Shutdown. Request dispatch is handled by the bus runtime.
func (d *Daemon) Serve(ctx context.Context) error {
	conn, err := dbus.ConnectSystemBus()
	if err != nil {
		return fmt.Errorf("connecting to system bus: %w", err)
	}
	defer conn.Close()
	d.conn = systemBusConn{conn: conn}
	if d.tracer == nil {
		d.tracer = otel.Tracer("chopper/broker")
	}
	if d.shutdown == nil {
		d.shutdown = make(chan struct{})
	}

	if err := conn.Export(dbusHandler{d: d}, ObjectPath, InterfaceName); err != nil {
		return fmt.Errorf("exporting broker object: %w", err)
	}

	reply, err := conn.RequestName(BusName, dbus.NameFlagDoNotQueue)
	if err != nil {
		return fmt.Errorf("requesting bus name %s: %w", BusName, err)
	}
	if reply != dbus.RequestNameReplyPrimaryOwner {
		return fmt.Errorf("bus name %s already taken", BusName)
	}

	slog.InfoContext(ctx, "broker.Serve", "busName", BusName, "pid", os.Getpid(), "runtimeDir", d.RuntimeDir)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case <-ctx.Done():
	case sig := <-sigChan:
		slog.InfoContext(ctx, "broker.Serve signal", "signal", sig.String())
	case <-d.shutdown:
	}

	if _, err := conn.ReleaseName(BusName); err != nil {
		slog.ErrorContext(ctx, "broker.Serve releasing bus name", "error", err)
	}
	return nil
}

// Shutdown stops a running Serve.
func (d *Daemon) Shutdown() {
	select {
	case <-d.shutdown:
	default:
		close(d.shutdown)
	}
}

// dbusHandler adapts the daemon's typed errors onto the bus surface.
// Exported methods must match the D-Bus method signature shape.
type dbusHandler struct {
	d *Daemon
}

// EnsureNamespace validates the caller's ownership of namespace,
// enforces the per-uid quota, clamps options, writes the drop-in, and
// starts the namespace units.
func (h dbusHandler) EnsureNamespace(sender dbus.Sender, namespace string, options map[string]string) *dbus.Error {
	ctx := context.Background()

	uid, err := h.d.conn.GetConnectionUnixUser(string(sender))
	if err != nil {
		return dbus.NewError(errNameFailed, []any{err.Error()})
	}

	if err := h.d.Ensure(ctx, uid, namespace, options); err != nil {
		switch {
		case errors.Is(err, ErrAccessDenied):
			return dbus.NewError(errNameAccessDenied, []any{err.Error()})
		case errors.Is(err, ErrLimitsExceeded):
			return dbus.NewError(errNameLimitsExceeded, []any{err.Error()})
		default:
			return dbus.NewError(errNameFailed, []any{err.Error()})
		}
	}
	return nil
}

// Ensure runs the request state machine for an already-authenticated
// caller: authorized -> quota-checked -> clamped -> drop-in-written ->
// units-started.
func (d *Daemon) Ensure(ctx context.Context, uid uint32, namespace string, options map[string]string) error {
	if d.tracer == nil {
		d.tracer = otel.Tracer("chopper/broker")
	}
	ctx, span := d.tracer.Start(ctx, "broker.EnsureNamespace",
		trace.WithAttributes(
			attribute.Int64("chopper.caller_uid", int64(uid)),
			attribute.String("chopper.namespace", namespace),
		))
	defer span.End()

	outcome, detail := "ok", ""
	defer func() {
		if d.Audit == nil {
			return
		}
		if err := d.Audit.Record(ctx, uid, namespace, options, outcome, detail); err != nil {
			slog.ErrorContext(ctx, "broker.Ensure audit record", "error", err)
		}
	}()

	if err := ValidateNamespaceOwnership(namespace, uid); err != nil {
		outcome, detail = "access-denied", err.Error()
		return fmt.Errorf("%w: %v", ErrAccessDenied, err)
	}

	active, err := CountActiveNamespaces(d.RuntimeDir, uid)
	if err != nil {
		outcome, detail = "failed", err.Error()
		return err
	}
	if active >= MaxNamespacesPerUID && !NamespaceActive(d.RuntimeDir, namespace) {
		outcome = "limits-exceeded"
		detail = fmt.Sprintf("uid %d already has %d active namespaces (limit %d)", uid, active, MaxNamespacesPerUID)
		return fmt.Errorf("%w: %s", ErrLimitsExceeded, detail)
	}

	config := ClampOptions(options)

	if err := WriteDropIn(d.RuntimeDir, namespace, config); err != nil {
		outcome, detail = "failed", err.Error()
		return fmt.Errorf("writing drop-in config: %w", err)
	}
	if err := d.Units.StartNamespaceUnits(ctx, namespace); err != nil {
		outcome, detail = "failed", err.Error()
		return fmt.Errorf("starting namespace units: %w", err)
	}

	slog.InfoContext(ctx, "broker.Ensure ok", "uid", uid, "namespace", namespace,
		"systemMaxUse", config.SystemMaxUse,
		"rateLimitIntervalUsec", config.RateLimitIntervalUsec,
		"rateLimitBurst", config.RateLimitBurst)
	return nil
}
