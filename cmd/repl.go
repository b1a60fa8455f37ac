package cmd

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/leftmike/pgslru/repl"
	"github.com/leftmike/pgslru/storage/pagestore"
)

var (
	replCmd = &cobra.Command{
		Use:   "repl [file]...",
		Short: "Run with an interactive console session",
		RunE:  replRun,
	}

	commandArgs = []string{}
)

func initCommandFlags(fs *pflag.FlagSet) {
	fs.StringSliceVarP(&commandArgs, "command", "c", commandArgs,
		"`command` to execute; multiple allowed")
}

func init() {
	fs := replCmd.Flags()
	initStoreFlags(fs)
	initCommandFlags(fs)

	pgslruCmd.AddCommand(replCmd)
}

// runCommands evaluates the --command arguments and then the commands in each
// file.
func runCommands(st *pagestore.Store, files []string) error {
	for _, arg := range commandArgs {
		err := repl.Repl(st, strings.NewReader(arg), os.Stdout)
		if err != nil {
			return fmt.Errorf("pgslru: command: %s", err)
		}
	}

	for _, file := range files {
		f, err := os.Open(file)
		if err != nil {
			return fmt.Errorf("pgslru: command file: %s", err)
		}
		err = repl.Repl(st, bufio.NewReader(f), os.Stderr)
		f.Close()
		if err != nil {
			return fmt.Errorf("pgslru: command file: %s: %s", file, err)
		}
	}
	return nil
}

func replRun(cmd *cobra.Command, args []string) error {
	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	err = runCommands(st, args)
	if err != nil {
		return err
	}

	if len(args) == 0 && len(commandArgs) == 0 {
		repl.Interact(st)
	}
	return nil
}
