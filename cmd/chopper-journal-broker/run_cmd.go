package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/chopper-cli/chopper/internal/broker"
	"github.com/chopper-cli/chopper/internal/tracing"
)

type RunCmd struct{}

func (c *RunCmd) Run(cctx *Context) error {
	ctx := context.Background()

	shutdownTracing, err := tracing.Init(ctx, "chopper-journal-broker")
	if err != nil {
		slog.ErrorContext(ctx, "RunCmd tracing init", "error", err)
	} else {
		defer shutdownTracing(ctx)
	}

	if err := os.MkdirAll(filepath.Dir(cctx.AuditDB), 0o750); err != nil {
		return fmt.Errorf("creating audit database directory: %w", err)
	}
	audit, err := broker.OpenAuditLog(cctx.AuditDB)
	if err != nil {
		return err
	}
	defer audit.Close()

	d := broker.NewDaemon(audit)
	d.RuntimeDir = cctx.RuntimeDir
	return d.Serve(ctx)
}
