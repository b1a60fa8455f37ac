package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/leftmike/pgslru/redo"
)

func init() {
	replayCmd := &cobra.Command{
		Use:   "replay <file>...",
		Short: "Apply the records in each file to the pages",
		Args:  cobra.MinimumNArgs(1),
		RunE:  replayRun,
	}
	initStoreFlags(replayCmd.Flags())

	pgslruCmd.AddCommand(replayCmd)
}

func replayRun(cmd *cobra.Command, args []string) error {
	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch := make(chan os.Signal, 1)
	signal.Notify(ch, os.Interrupt)
	defer signal.Stop(ch)
	go func() {
		select {
		case <-ch:
			cancel()
		case <-ctx.Done():
		}
	}()

	ap := redo.NewApplier(st)
	for _, file := range args {
		f, err := os.Open(file)
		if err != nil {
			return fmt.Errorf("pgslru: replay: %s", err)
		}
		cnt, err := ap.Replay(ctx, f)
		f.Close()

		log.WithFields(log.Fields{
			"file":    file,
			"records": cnt,
		}).Info("replayed")
		if err != nil {
			return fmt.Errorf("pgslru: replay: %s: %s", file, err)
		}
		fmt.Printf("%s: %d records\n", file, cnt)
	}
	return nil
}
