package main

import (
	"github.com/spf13/cobra"

	"github.com/xmlongan/jmomden/pkg/report"
)

func (c *cli) reportCmd() *cobra.Command {
	var mf modelFlags
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Print moments, bases, correction tensor and marginals of a model",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			d, err := c.density(&mf)
			if err != nil {
				return err
			}
			return report.All(cmd.OutOrStdout(), d)
		},
	}
	mf.register(cmd.Flags())
	return cmd
}
