// filebuttons turns three GPIO push buttons into a file browser for a
// Klipper printer: Left and Right step through folders or files, Center
// loads a folder or starts the selected file, all three cancel a print.
//
// Usage:
//
//	filebuttons run -c ~/printer_data/config/filebuttons.cfg
//	filebuttons check -c filebuttons.yaml --probe
//	filebuttons simulate session.yaml
//	filebuttons version
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"filebuttons/pkg/log"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

type rootOptions struct {
	configPath string
	verbose    bool
	logFormat  string
	logFile    string

	logWriter *log.RotatingFileWriter
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	ro := &rootOptions{}
	root := &cobra.Command{
		Use:           "filebuttons",
		Short:         "Three-button file navigation and print control",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return ro.setupLogging()
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if ro.logWriter != nil {
				return ro.logWriter.Close()
			}
			return nil
		},
	}

	pf := root.PersistentFlags()
	pf.StringVarP(&ro.configPath, "config", "c", "filebuttons.cfg", "config file (.cfg, .yaml or .toml)")
	pf.BoolVarP(&ro.verbose, "verbose", "v", false, "enable debug logging")
	pf.StringVar(&ro.logFormat, "log-format", "", "log format: text or json")
	pf.StringVar(&ro.logFile, "logfile", "", "also write logs to this file, rotated by size")

	root.AddCommand(runCmd(ro))
	root.AddCommand(simulateCmd())
	root.AddCommand(checkCmd(ro))
	root.AddCommand(versionCmd())
	return root
}

func (ro *rootOptions) setupLogging() error {
	l := log.GetLogger("")
	if ro.verbose {
		l.SetLevel(log.DEBUG)
	}
	if ro.logFormat != "" {
		l.SetFormat(log.ParseFormat(ro.logFormat))
	}
	if ro.logFile != "" {
		w, err := log.AttachFile(l, log.RotationConfig{
			Filename:   ro.logFile,
			MaxSize:    5,
			MaxBackups: 3,
			Compress:   true,
		})
		if err != nil {
			return fmt.Errorf("log file: %w", err)
		}
		ro.logWriter = w
	}
	return nil
}
