// Package cmd implements the softnicctl commands.
package cmd

import (
	"fmt"
	"log/slog"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ardnew/softnic/pkg"
	"github.com/ardnew/softnic/pkg/config"
)

// Version is set at build time.
var Version = "0.1.0"

var (
	okFmt   = color.New(color.FgGreen).SprintFunc()
	warnFmt = color.New(color.FgYellow).SprintFunc()
	errFmt  = color.New(color.FgRed, color.Bold).SprintFunc()
	headFmt = color.New(color.FgBlue, color.Bold).SprintFunc()
	dimFmt  = color.New(color.Faint).SprintFunc()
)

// options holds the persistent flags and the class they resolve to.
type options struct {
	configPath string
	verbose    bool
	logFormat  string
	noColor    bool

	class config.Class
}

// NewRootCommand returns the softnicctl command tree.
func NewRootCommand() *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:   "softnicctl",
		Short: "Exercise the queue lifecycle of a simulated CTPIO adapter",
		Long: `softnicctl attaches an adapter to the built-in simulator and walks
its event and transmit queues through enable, flush and teardown.

The adapter class is read from --config, or the built-in ef10ct-sim
class is used.`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return opts.setup(cmd)
		},
	}

	flags := root.PersistentFlags()
	flags.StringVarP(&opts.configPath, "config", "c", "", "adapter class YAML file")
	flags.BoolVarP(&opts.verbose, "verbose", "v", false, "enable debug logging")
	flags.StringVar(&opts.logFormat, "log-format", "text", "log format: text or json")
	flags.BoolVar(&opts.noColor, "no-color", false, "disable colored output")

	root.AddCommand(newClassCommand(opts), newRunCommand(opts))
	return root
}

func (o *options) setup(cmd *cobra.Command) error {
	pkg.SetLogOutput(cmd.ErrOrStderr(), pkg.ParseLogFormat(o.logFormat))
	if o.verbose {
		pkg.SetLogLevel(slog.LevelDebug)
	}
	if o.noColor {
		color.NoColor = true
	}

	if o.configPath == "" {
		o.class = config.Default()
		return nil
	}
	class, err := config.Load(o.configPath)
	if err != nil {
		return fmt.Errorf("load class: %w", err)
	}
	o.class = class
	return nil
}
