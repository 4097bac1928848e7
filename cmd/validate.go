package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/nsrrkit/psgprep/internal/container"
)

// validateCommand re-opens written containers and checks their
// structural invariants: channel count and ordering, equal array
// lengths, finite values, stats presence. A sibling .stages file is
// checked for valid stage codes when present.
func validateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <container.psgc> [...]",
		Short: "Check written containers against their invariants",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var failed int
			for _, path := range args {
				if err := validateOne(path); err != nil {
					failed++
					fmt.Fprintf(cmd.ErrOrStderr(), "FAIL %s: %v\n", path, err)
					continue
				}
				fmt.Fprintf(cmd.OutOrStdout(), "OK   %s\n", path)
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d containers failed validation", failed, len(args))
			}
			return nil
		},
	}
}

func validateOne(path string) error {
	c, err := container.Read(path)
	if err != nil {
		return err
	}
	if err := container.Validate(c); err != nil {
		return err
	}

	stagesPath := strings.TrimSuffix(path, ".psgc") + ".stages"
	if _, err := os.Stat(stagesPath); err != nil {
		return nil // stage artifact is optional
	}
	stages, _, err := container.ReadStages(stagesPath)
	if err != nil {
		return err
	}
	return container.ValidateStages(stages)
}
