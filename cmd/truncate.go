package cmd

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/leftmike/pgslru/storage/pagestore"
)

func init() {
	truncateCmd := &cobra.Command{
		Use:   "truncate <slru> <cutoff-page>",
		Short: "Delete the segments which are entirely older than the cutoff page",
		Args:  cobra.ExactArgs(2),
		RunE:  truncateRun,
	}
	initStoreFlags(truncateCmd.Flags())

	pgslruCmd.AddCommand(truncateCmd)
}

func truncateRun(cmd *cobra.Command, args []string) error {
	kind, err := pagestore.ParseKind(args[0])
	if err != nil {
		return err
	}
	cutoffPage, err := strconv.ParseUint(args[1], 0, 32)
	if err != nil {
		return fmt.Errorf("pgslru: bad cutoff page: %s", args[1])
	}

	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	cnt, err := st.Truncate(kind, uint32(cutoffPage), kind.TruncatePrecedes())
	if err != nil {
		return fmt.Errorf("pgslru: truncate: %s", err)
	}
	fmt.Printf("%s: %d segments deleted\n", kind, cnt)
	return nil
}
