package repl

import (
	"fmt"
	"io"
	"os"

	"github.com/peterh/liner"

	"github.com/leftmike/pgslru/storage/pagestore"
)

const (
	pgslruHistory = ".pgslru_history"
)

func Interact(st *pagestore.Store) {
	line := liner.NewLiner()
	defer line.Close()

	if f, err := os.Open(pgslruHistory); err == nil {
		line.ReadHistory(f)
		f.Close()
	}

	for {
		s, err := line.Prompt("pgslru: ")
		if err == io.EOF || err == liner.ErrPromptAborted {
			break
		} else if err != nil {
			fmt.Fprintln(os.Stderr, err)
			break
		}
		line.AppendHistory(s)

		res, err := Eval(st, s)
		if err != nil {
			fmt.Println(err)
		} else if res != nil {
			Render(res, os.Stdout)
		}
	}

	if f, err := os.Create(pgslruHistory); err != nil {
		fmt.Fprintf(os.Stderr, "pgslru: error writing history file, %s: %s", pgslruHistory, err)
	} else {
		line.WriteHistory(f)
		f.Close()
	}
}
