package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"filebuttons/pkg/buttons"
	"filebuttons/pkg/config"
	"filebuttons/pkg/gpio"
)

func checkCmd(ro *rootOptions) *cobra.Command {
	var probe bool
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Validate the config file and optionally claim the pins",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := config.LoadSettings(ro.configPath)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			printSettings(out, ro.configPath, s)
			if !probe {
				return nil
			}
			return probePins(out, s)
		},
	}
	cmd.Flags().BoolVar(&probe, "probe", false, "claim and release each pin on the configured GPIO driver")
	return cmd
}

func printSettings(w io.Writer, path string, s *config.Settings) {
	fmt.Fprintf(w, "%s: ok\n", path)
	pins := s.Pins()
	for _, ch := range buttons.Channels {
		fmt.Fprintf(w, "  %-7s %s\n", ch.String()+":", pins[ch])
	}
	fmt.Fprintf(w, "  gpio:    %s (bounce %s)\n", s.GPIODriver, s.BounceTime)
	fmt.Fprintf(w, "  windows: short %s, long %s\n", s.ShortWindow, s.LongWindow)
	switch s.Printer {
	case "moonraker":
		fmt.Fprintf(w, "  printer: moonraker %s\n", s.MoonrakerURL)
	default:
		fmt.Fprintf(w, "  printer: %s\n", s.Printer)
	}
	if s.Lister == "local" {
		fmt.Fprintf(w, "  files:   local %s\n", s.LocalRoot)
	} else {
		fmt.Fprintf(w, "  files:   %s\n", s.Lister)
	}
	fmt.Fprintf(w, "  origin:  %s [%s]\n", s.Origin, strings.Join(s.Extensions, " "))
}

// probePins claims every pin once and releases it again. All pins are
// tried even when one fails.
func probePins(w io.Writer, s *config.Settings) error {
	driver, err := gpio.Open(s.GPIODriver, s.GPIOChip)
	if err != nil {
		return err
	}
	defer driver.Close()

	var lines []gpio.Line
	failed := 0
	pins := s.Pins()
	for _, ch := range buttons.Channels {
		line, err := driver.Open(pins[ch], s.BounceTime, nil)
		if err != nil {
			failed++
			fmt.Fprintf(w, "  %s %s: %v\n", ch, pins[ch], err)
			continue
		}
		lines = append(lines, line)
		level, err := line.Read()
		if err != nil {
			fmt.Fprintf(w, "  %s %s: claimed, read failed: %v\n", ch, pins[ch], err)
			continue
		}
		fmt.Fprintf(w, "  %s %s: claimed, pressed=%t\n", ch, pins[ch], level)
	}
	for _, l := range lines {
		l.Close()
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d pins could not be claimed", failed, len(pins))
	}
	return nil
}
