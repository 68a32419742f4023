package main

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/chopper-cli/chopper/internal/broker"
)

type AuditCmd struct {
	Limit int `default:"50" placeholder:"<n>" help:"number of most recent entries to print"`
}

func (c *AuditCmd) Run(cctx *Context) error {
	audit, err := broker.OpenAuditLog(cctx.AuditDB)
	if err != nil {
		return err
	}
	defer audit.Close()

	entries, err := audit.Tail(context.Background(), c.Limit)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Println("no audit entries")
		return nil
	}
	out, err := yaml.Marshal(entries)
	if err != nil {
		return fmt.Errorf("rendering audit entries: %w", err)
	}
	_, err = os.Stdout.Write(out)
	return err
}
