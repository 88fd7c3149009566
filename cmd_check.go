package main

import (
	"fmt"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/d1nch8g/gpiobell/app"
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Validate configuration and decode every mapped clip",
	RunE:  runCheck,
}

func runCheck(cmd *cobra.Command, args []string) error {
	if err := loadConfig(); err != nil {
		return err
	}
	pins, err := loadPins()
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "audio root: %s\nbackend: %s\n", cfg.AudioRoot, cfg.Backend)
	if failed := app.Check(out, afero.NewOsFs(), cfg.AudioRoot, pins); failed > 0 {
		return fmt.Errorf("%d clip(s) could not be decoded", failed)
	}
	return nil
}
