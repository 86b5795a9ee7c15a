package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/ardnew/softnic/pkg/config"
)

func newClassCommand(opts *options) *cobra.Command {
	var asYAML bool

	cmd := &cobra.Command{
		Use:   "class",
		Short: "Print the adapter class and its queue table",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			if asYAML {
				return yaml.NewEncoder(out).Encode(opts.class)
			}

			c := opts.class
			fmt.Fprintf(out, "%s %s\n", headFmt("class"), c.Name)
			fmt.Fprintf(out, "  evqs %d  txqs %d  vis %d  vi_min %d\n", c.EVQs, c.TXQs, c.VIs, c.VIMin)
			fmt.Fprintf(out, "  flush retry %s\n\n", c.FlushRetryDelay)

			w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "EVQ\tTXQ\tKIND")
			for i := 0; i < c.EVQs; i++ {
				if txq := c.TXQ(i); txq != config.NoTXQ {
					fmt.Fprintf(w, "%d\t%d\t%s\n", i, txq, okFmt("tx"))
				} else {
					fmt.Fprintf(w, "%d\t-\t%s\n", i, "rx only")
				}
			}
			if c.VIs > c.EVQs {
				fmt.Fprintf(w, "%d-%d\t-\t%s\n", c.EVQs, c.VIs-1, dimFmt("dummy"))
			}
			return w.Flush()
		},
	}
	cmd.Flags().BoolVar(&asYAML, "yaml", false, "print the class as YAML")
	return cmd
}
