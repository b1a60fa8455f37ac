package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

const (
	version = "pgslru 0.1"
)

func init() {
	pgslruCmd.AddCommand(
		&cobra.Command{
			Use:   "version",
			Short: "Print the version number of pgslru",
			Run: func(cmd *cobra.Command, args []string) {
				fmt.Println(version)
			},
		})
}
