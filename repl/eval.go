package repl

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/leftmike/pgslru/clog"
	"github.com/leftmike/pgslru/csnlog"
	"github.com/leftmike/pgslru/multixact"
	"github.com/leftmike/pgslru/page"
	"github.com/leftmike/pgslru/slru"
	"github.com/leftmike/pgslru/storage/pagestore"
	"github.com/leftmike/pgslru/transam"
)

// Result is the outcome of evaluating one command: optionally a table of
// rows, and always a tag naming the command.
type Result struct {
	Columns []string
	Rows    [][]string
	Tag     string
}

type command struct {
	usage    string
	minArgs  int
	maxArgs  int
	needsSt  bool
	evaluate func(st *pagestore.Store, args []string) (*Result, error)
}

var (
	commands map[string]*command

	errNoStore = errors.New("repl: no page store")
)

func init() {
	commands = map[string]*command{
		"status": {
			usage:    "status <xid>",
			minArgs:  1,
			maxArgs:  1,
			needsSt:  true,
			evaluate: evalStatus,
		},
		"set status": {
			usage:    "set status <xid> <status>",
			minArgs:  2,
			maxArgs:  2,
			needsSt:  true,
			evaluate: evalSetStatus,
		},
		"csn": {
			usage:    "csn <xid> [<region>]",
			minArgs:  1,
			maxArgs:  2,
			needsSt:  true,
			evaluate: evalCSN,
		},
		"set csn": {
			usage:    "set csn <xid> <csn> [<region>]",
			minArgs:  2,
			maxArgs:  3,
			needsSt:  true,
			evaluate: evalSetCSN,
		},
		"offset": {
			usage:    "offset <multixact>",
			minArgs:  1,
			maxArgs:  1,
			needsSt:  true,
			evaluate: evalOffset,
		},
		"member": {
			usage:    "member <offset> [<region>]",
			minArgs:  1,
			maxArgs:  2,
			needsSt:  true,
			evaluate: evalMember,
		},
		"addr": {
			usage:    "addr <offset> [<region>]",
			minArgs:  1,
			maxArgs:  2,
			evaluate: evalAddr,
		},
		"segments": {
			usage:    "segments <slru>",
			minArgs:  1,
			maxArgs:  1,
			needsSt:  true,
			evaluate: evalSegments,
		},
		"may-delete": {
			usage:    "may-delete <segment-page> <cutoff-page> [<slru>]",
			minArgs:  2,
			maxArgs:  3,
			evaluate: evalMayDelete,
		},
		"precedes": {
			usage:    "precedes <xid> <xid>",
			minArgs:  2,
			maxArgs:  2,
			evaluate: evalPrecedes,
		},
		"help": {
			usage:    "help",
			evaluate: evalHelp,
		},
	}
}

// Eval evaluates one command line. Commands which only compute addresses or
// orderings may be evaluated with a nil store.
func Eval(st *pagestore.Store, line string) (*Result, error) {
	args := strings.Fields(strings.TrimSuffix(strings.TrimSpace(line), ";"))
	if len(args) == 0 {
		return nil, nil
	}

	name := strings.ToLower(args[0])
	args = args[1:]
	if name == "set" && len(args) > 0 {
		name = "set " + strings.ToLower(args[0])
		args = args[1:]
	}

	cmd, ok := commands[name]
	if !ok {
		return nil, fmt.Errorf("repl: unknown command: %s; try help", name)
	}
	if len(args) < cmd.minArgs || len(args) > cmd.maxArgs {
		return nil, fmt.Errorf("repl: usage: %s", cmd.usage)
	}
	if cmd.needsSt && st == nil {
		return nil, errNoStore
	}
	return cmd.evaluate(st, args)
}

func parseUint32(what, s string) (uint32, error) {
	n, err := strconv.ParseUint(s, 0, 32)
	if err != nil {
		return 0, fmt.Errorf("repl: bad %s: %s", what, s)
	}
	return uint32(n), nil
}

func parseRegion(args []string, idx int) (uint32, error) {
	if len(args) <= idx {
		return 0, nil
	}
	region, err := parseUint32("region", args[idx])
	if err != nil {
		return 0, err
	}
	if region >= slru.MaxRegions {
		return 0, fmt.Errorf("repl: region must be less than %d: %d", slru.MaxRegions, region)
	}
	return region, nil
}

func formatUint(n uint64) string {
	return strconv.FormatUint(n, 10)
}

func evalStatus(st *pagestore.Store, args []string) (*Result, error) {
	xid, err := transam.ParseTransactionID(args[0])
	if err != nil {
		return nil, err
	}

	pageno := clog.PageNumber(xid)
	pg, err := st.ReadPage(pagestore.Clog, pageno)
	if err != nil {
		return nil, err
	}

	return &Result{
		Columns: []string{"xid", "page", "status"},
		Rows: [][]string{
			{xid.String(), formatUint(uint64(pageno)), clog.GetStatus(xid, pg).String()},
		},
		Tag: "STATUS 1",
	}, nil
}

func evalSetStatus(st *pagestore.Store, args []string) (*Result, error) {
	xid, err := transam.ParseTransactionID(args[0])
	if err != nil {
		return nil, err
	}
	status, err := transam.ParseXidStatus(args[1])
	if err != nil {
		return nil, err
	}

	err = st.WritePage(pagestore.Clog, clog.PageNumber(xid),
		func(pg page.Page) error {
			clog.SetStatus(xid, status, pg)
			return nil
		})
	if err != nil {
		return nil, err
	}
	return &Result{Tag: "SET"}, nil
}

func evalCSN(st *pagestore.Store, args []string) (*Result, error) {
	xid, err := transam.ParseTransactionID(args[0])
	if err != nil {
		return nil, err
	}
	region, err := parseRegion(args, 1)
	if err != nil {
		return nil, err
	}

	pageno := csnlog.PageNumber(xid, region)
	pg, err := st.ReadPage(pagestore.CSN, pageno)
	if err != nil {
		return nil, err
	}

	return &Result{
		Columns: []string{"xid", "region", "page", "csn"},
		Rows: [][]string{
			{
				xid.String(),
				formatUint(uint64(region)),
				formatUint(uint64(pageno)),
				formatUint(csnlog.GetCSN(xid, pg)),
			},
		},
		Tag: "CSN 1",
	}, nil
}

func evalSetCSN(st *pagestore.Store, args []string) (*Result, error) {
	xid, err := transam.ParseTransactionID(args[0])
	if err != nil {
		return nil, err
	}
	csn, err := strconv.ParseUint(args[1], 0, 64)
	if err != nil {
		return nil, fmt.Errorf("repl: bad csn: %s", args[1])
	}
	region, err := parseRegion(args, 2)
	if err != nil {
		return nil, err
	}

	err = st.WritePage(pagestore.CSN, csnlog.PageNumber(xid, region),
		func(pg page.Page) error {
			csnlog.SetCSN(xid, csn, pg)
			return nil
		})
	if err != nil {
		return nil, err
	}
	return &Result{Tag: "SET"}, nil
}

func evalOffset(st *pagestore.Store, args []string) (*Result, error) {
	n, err := parseUint32("multixact", args[0])
	if err != nil {
		return nil, err
	}
	mxid := transam.MultiXactID(n)

	pageno := multixact.OffsetPage(mxid)
	pg, err := st.ReadPage(pagestore.MultiXactOffsets, pageno)
	if err != nil {
		return nil, err
	}

	return &Result{
		Columns: []string{"multixact", "page", "offset"},
		Rows: [][]string{
			{
				formatUint(uint64(mxid)),
				formatUint(uint64(pageno)),
				formatUint(uint64(multixact.GetOffset(mxid, pg))),
			},
		},
		Tag: "OFFSET 1",
	}, nil
}

func addrRow(off transam.MultiXactOffset, region uint32) []string {
	return []string{
		formatUint(uint64(off)),
		formatUint(uint64(region)),
		formatUint(uint64(multixact.MemberPage(off, region))),
		strconv.FormatInt(int64(multixact.MemberSegment(off, region)), 10),
		strconv.Itoa(multixact.FlagsOffset(off)),
		strconv.FormatUint(uint64(multixact.FlagsBitShift(off)), 10),
		strconv.Itoa(multixact.MemberOffset(off)),
	}
}

var addrColumns = []string{"offset", "region", "page", "segment", "flags", "shift", "member"}

func parseOffsetRegion(args []string) (transam.MultiXactOffset, uint32, error) {
	n, err := parseUint32("offset", args[0])
	if err != nil {
		return 0, 0, err
	}
	region, err := parseRegion(args, 1)
	if err != nil {
		return 0, 0, err
	}
	return transam.MultiXactOffset(n), region, nil
}

func evalAddr(st *pagestore.Store, args []string) (*Result, error) {
	off, region, err := parseOffsetRegion(args)
	if err != nil {
		return nil, err
	}

	return &Result{
		Columns: addrColumns,
		Rows:    [][]string{addrRow(off, region)},
		Tag:     "ADDR 1",
	}, nil
}

func evalMember(st *pagestore.Store, args []string) (*Result, error) {
	off, region, err := parseOffsetRegion(args)
	if err != nil {
		return nil, err
	}

	pg, err := st.ReadPage(pagestore.MultiXactMembers, multixact.MemberPage(off, region))
	if err != nil {
		return nil, err
	}
	m := multixact.GetMember(off, pg)

	return &Result{
		Columns: append(append([]string{}, addrColumns...), "xid", "lock"),
		Rows:    [][]string{append(addrRow(off, region), m.Xid.String(), m.Status.String())},
		Tag:     "MEMBER 1",
	}, nil
}

func evalSegments(st *pagestore.Store, args []string) (*Result, error) {
	kind, err := pagestore.ParseKind(args[0])
	if err != nil {
		return nil, err
	}

	segnos, err := st.Segments(kind)
	if err != nil {
		return nil, err
	}

	res := Result{
		Columns: []string{"slru", "segment", "first page"},
		Tag:     fmt.Sprintf("SEGMENTS %d", len(segnos)),
	}
	for _, segno := range segnos {
		res.Rows = append(res.Rows, []string{kind.String(), slru.SegmentFileName(segno),
			formatUint(uint64(slru.SegmentFirstPage(segno)))})
	}
	return &res, nil
}

func evalMayDelete(st *pagestore.Store, args []string) (*Result, error) {
	segPage, err := parseUint32("segment page", args[0])
	if err != nil {
		return nil, err
	}
	if segPage%slru.PagesPerSegment != 0 {
		return nil, fmt.Errorf("repl: segment page must be a multiple of %d: %d",
			slru.PagesPerSegment, segPage)
	}
	cutoffPage, err := parseUint32("cutoff page", args[1])
	if err != nil {
		return nil, err
	}
	kind := pagestore.Clog
	if len(args) > 2 {
		kind, err = pagestore.ParseKind(args[2])
		if err != nil {
			return nil, err
		}
	}

	return &Result{
		Columns: []string{"slru", "segment", "cutoff", "may delete"},
		Rows: [][]string{
			{
				kind.String(),
				slru.SegmentFileName(slru.SegmentNumber(segPage)),
				formatUint(uint64(cutoffPage)),
				strconv.FormatBool(slru.MayDeleteSegment(segPage, cutoffPage,
					kind.TruncatePrecedes())),
			},
		},
		Tag: "MAY-DELETE 1",
	}, nil
}

func evalPrecedes(st *pagestore.Store, args []string) (*Result, error) {
	a, err := transam.ParseTransactionID(args[0])
	if err != nil {
		return nil, err
	}
	b, err := transam.ParseTransactionID(args[1])
	if err != nil {
		return nil, err
	}

	return &Result{
		Columns: []string{"a", "b", "precedes"},
		Rows:    [][]string{{a.String(), b.String(), strconv.FormatBool(transam.Precedes(a, b))}},
		Tag:     "PRECEDES 1",
	}, nil
}

func evalHelp(st *pagestore.Store, args []string) (*Result, error) {
	names := []string{"status", "set status", "csn", "set csn", "offset", "member", "addr",
		"segments", "may-delete", "precedes", "help"}

	res := Result{
		Columns: []string{"command"},
		Tag:     fmt.Sprintf("HELP %d", len(names)),
	}
	for _, name := range names {
		res.Rows = append(res.Rows, []string{commands[name].usage})
	}
	return &res, nil
}
