package cmd

import (
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/leftmike/pgslru/repl"
)

func init() {
	pgslruCmd.AddCommand(
		&cobra.Command{
			Use:   "addr <offset> [region]",
			Short: "Print where a multixact member is stored",
			Args:  cobra.RangeArgs(1, 2),
			RunE: func(cmd *cobra.Command, args []string) error {
				res, err := repl.Eval(nil, "addr "+strings.Join(args, " "))
				if err != nil {
					return err
				}
				repl.Render(res, os.Stdout)
				return nil
			},
		})
}
