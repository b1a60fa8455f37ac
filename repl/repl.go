package repl

import (
	"bufio"
	"fmt"
	"io"

	"github.com/olekukonko/tablewriter"

	"github.com/leftmike/pgslru/storage/pagestore"
)

func Render(res *Result, w io.Writer) {
	if res.Columns == nil {
		fmt.Fprintln(w, res.Tag)
		return
	}

	tw := tablewriter.NewWriter(w)
	tw.SetAutoFormatHeaders(false)
	tw.SetAutoWrapText(false)
	tw.SetHeader(res.Columns)
	for _, row := range res.Rows {
		tw.Append(row)
	}
	tw.Render()
	fmt.Fprintf(w, "(%d rows)\n", len(res.Rows))
}

// Repl evaluates each line read from r and writes the results, or the error,
// to w.
func Repl(st *pagestore.Store, r io.Reader, w io.Writer) error {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		res, err := Eval(st, scanner.Text())
		if err != nil {
			fmt.Fprintln(w, err)
			continue
		}
		if res != nil {
			Render(res, w)
		}
	}
	return scanner.Err()
}
