package main

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/chopper-cli/chopper/version"
)

type VersionCmd struct{}

func (c *VersionCmd) Run(cctx *Context) error {
	out, err := yaml.Marshal(version.Get())
	if err != nil {
		return fmt.Errorf("rendering version info: %w", err)
	}
	_, err = os.Stdout.Write(out)
	return err
}
