package pagestore_test

import (
	"encoding/binary"
	"errors"
	"path/filepath"
	"reflect"
	"sync"
	"testing"

	"github.com/leftmike/pgslru/clog"
	"github.com/leftmike/pgslru/csnlog"
	"github.com/leftmike/pgslru/page"
	"github.com/leftmike/pgslru/storage/kv"
	"github.com/leftmike/pgslru/storage/pagestore"
	"github.com/leftmike/pgslru/testutil"
	"github.com/leftmike/pgslru/transam"
)

func newStore(t *testing.T) *pagestore.Store {
	t.Helper()

	kvst, err := kv.Open("memory", "", nil)
	if err != nil {
		t.Fatal(err)
	}
	return pagestore.NewStore(kvst)
}

func TestParseKind(t *testing.T) {
	cases := []struct {
		s    string
		kind pagestore.Kind
		fail bool
	}{
		{s: "clog", kind: pagestore.Clog},
		{s: "pg_xact", kind: pagestore.Clog},
		{s: "CSN", kind: pagestore.CSN},
		{s: "pg_csn", kind: pagestore.CSN},
		{s: "offsets", kind: pagestore.MultiXactOffsets},
		{s: "pg_multixact/members", kind: pagestore.MultiXactMembers},
		{s: "pg_subtrans", fail: true},
	}

	for _, c := range cases {
		kind, err := pagestore.ParseKind(c.s)
		if c.fail {
			if err == nil {
				t.Errorf("ParseKind(%q) did not fail", c.s)
			}
		} else if err != nil {
			t.Errorf("ParseKind(%q) failed with %s", c.s, err)
		} else if kind != c.kind {
			t.Errorf("ParseKind(%q) got %s want %s", c.s, kind, c.kind)
		}
	}
}

func TestReadWritePage(t *testing.T) {
	st := newStore(t)
	defer st.Close()

	pg, err := st.ReadPage(pagestore.Clog, 7)
	if err != nil {
		t.Fatalf("ReadPage(clog, 7) failed with %s", err)
	}
	if len(pg) != page.BlockSize || !pg.IsZero() {
		t.Errorf("ReadPage(clog, 7) of a missing page is not a zero page")
	}

	xid := transam.TransactionID(7*clog.XactsPerPage + 5)
	err = st.WritePage(pagestore.Clog, 7,
		func(pg page.Page) error {
			clog.SetStatus(xid, transam.StatusCommitted, pg)
			return nil
		})
	if err != nil {
		t.Fatalf("WritePage(clog, 7) failed with %s", err)
	}

	pg, err = st.ReadPage(pagestore.Clog, 7)
	if err != nil {
		t.Fatalf("ReadPage(clog, 7) failed with %s", err)
	}
	if s := clog.GetStatus(xid, pg); s != transam.StatusCommitted {
		t.Errorf("GetStatus(%d) got %s want %s", xid, s, transam.StatusCommitted)
	}

	clog.SetStatus(xid, transam.StatusAborted, pg)
	pg, err = st.ReadPage(pagestore.Clog, 7)
	if err != nil {
		t.Fatalf("ReadPage(clog, 7) failed with %s", err)
	}
	if s := clog.GetStatus(xid, pg); s != transam.StatusCommitted {
		t.Errorf("ReadPage(clog, 7) did not return a copy: got %s", s)
	}

	pg, err = st.ReadPage(pagestore.CSN, 7)
	if err != nil {
		t.Fatalf("ReadPage(csn, 7) failed with %s", err)
	}
	if !pg.IsZero() {
		t.Errorf("ReadPage(csn, 7) sees a clog page")
	}
}

func TestWritePageFails(t *testing.T) {
	st := newStore(t)
	defer st.Close()

	errFailed := errors.New("failed")
	err := st.WritePage(pagestore.CSN, 3,
		func(pg page.Page) error {
			csnlog.SetCSN(3*csnlog.XactsPerPage, 123, pg)
			return errFailed
		})
	if err != errFailed {
		t.Errorf("WritePage(csn, 3) got %v want %s", err, errFailed)
	}

	segnos, err := st.Segments(pagestore.CSN)
	if err != nil {
		t.Fatalf("Segments(csn) failed with %s", err)
	}
	if len(segnos) != 0 {
		t.Errorf("Segments(csn) got %v want none", segnos)
	}
}

func TestConcurrentWritePage(t *testing.T) {
	st := newStore(t)
	defer st.Close()

	const writers = 8
	const increments = 100

	var wg sync.WaitGroup
	for w := 0; w < writers; w += 1 {
		wg.Add(1)
		go func() {
			defer wg.Done()

			for n := 0; n < increments; n += 1 {
				err := st.WritePage(pagestore.MultiXactOffsets, 1,
					func(pg page.Page) error {
						binary.LittleEndian.PutUint32(pg, binary.LittleEndian.Uint32(pg)+1)
						return nil
					})
				if err != nil {
					t.Errorf("WritePage(offsets, 1) failed with %s", err)
					return
				}
			}
		}()
	}
	wg.Wait()

	pg, err := st.ReadPage(pagestore.MultiXactOffsets, 1)
	if err != nil {
		t.Fatalf("ReadPage(offsets, 1) failed with %s", err)
	}
	if cnt := binary.LittleEndian.Uint32(pg); cnt != writers*increments {
		t.Errorf("WritePage(offsets, 1): got %d increments want %d", cnt, writers*increments)
	}
}

func testTruncate(t *testing.T, st *pagestore.Store) {
	t.Helper()

	for _, pageno := range []uint32{0, 1, 40, 64, 100} {
		err := st.ZeroPage(pagestore.Clog, pageno)
		if err != nil {
			t.Fatalf("ZeroPage(clog, %d) failed with %s", pageno, err)
		}
	}
	err := st.ZeroPage(pagestore.CSN, 0)
	if err != nil {
		t.Fatalf("ZeroPage(csn, 0) failed with %s", err)
	}

	segnos, err := st.Segments(pagestore.Clog)
	if err != nil {
		t.Fatalf("Segments(clog) failed with %s", err)
	}
	if !reflect.DeepEqual(segnos, []uint32{0, 1, 2, 3}) {
		t.Errorf("Segments(clog) got %v want [0 1 2 3]", segnos)
	}

	cnt, err := st.Truncate(pagestore.Clog, 64, pagestore.Clog.TruncatePrecedes())
	if err != nil {
		t.Fatalf("Truncate(clog, 64) failed with %s", err)
	}
	if cnt != 2 {
		t.Errorf("Truncate(clog, 64) got %d want 2", cnt)
	}

	segnos, err = st.Segments(pagestore.Clog)
	if err != nil {
		t.Fatalf("Segments(clog) failed with %s", err)
	}
	if !reflect.DeepEqual(segnos, []uint32{2, 3}) {
		t.Errorf("Segments(clog) got %v want [2 3]", segnos)
	}

	segnos, err = st.Segments(pagestore.CSN)
	if err != nil {
		t.Fatalf("Segments(csn) failed with %s", err)
	}
	if !reflect.DeepEqual(segnos, []uint32{0}) {
		t.Errorf("Segments(csn) got %v want [0]", segnos)
	}

	err = st.DeleteSegment(pagestore.Clog, 3)
	if err != nil {
		t.Fatalf("DeleteSegment(clog, 3) failed with %s", err)
	}
	segnos, err = st.Segments(pagestore.Clog)
	if err != nil {
		t.Fatalf("Segments(clog) failed with %s", err)
	}
	if !reflect.DeepEqual(segnos, []uint32{2}) {
		t.Errorf("Segments(clog) got %v want [2]", segnos)
	}
}

func TestTruncate(t *testing.T) {
	testTruncate(t, newStore(t))
}

func TestTruncateBBolt(t *testing.T) {
	dataDir := filepath.Join("testdata", "bbolt")
	err := testutil.CleanDir(dataDir, []string{".gitignore"})
	if err != nil {
		t.Fatal(err)
	}

	kvst, err := kv.Open("bbolt", dataDir, nil)
	if err != nil {
		t.Fatal(err)
	}
	st := pagestore.NewStore(kvst)
	defer st.Close()

	testTruncate(t, st)
}

func TestTruncateCSNRegions(t *testing.T) {
	st := newStore(t)
	defer st.Close()

	// Region 5 of local pages 0 and 1, and region 5 of local page 40.
	for _, xid := range []transam.TransactionID{0, csnlog.XactsPerPage, 40 * csnlog.XactsPerPage} {
		pageno := csnlog.PageNumber(xid, 5)
		err := st.WritePage(pagestore.CSN, pageno,
			func(pg page.Page) error {
				csnlog.SetCSN(xid, uint64(xid)+1, pg)
				return nil
			})
		if err != nil {
			t.Fatalf("WritePage(csn, %d) failed with %s", pageno, err)
		}
	}

	cutoff := csnlog.PageNumber(40*csnlog.XactsPerPage, 0)
	cnt, err := st.Truncate(pagestore.CSN, cutoff, pagestore.CSN.TruncatePrecedes())
	if err != nil {
		t.Fatalf("Truncate(csn, %d) failed with %s", cutoff, err)
	}
	if cnt != 2 {
		t.Errorf("Truncate(csn, %d) got %d want 2", cutoff, cnt)
	}

	pageno := csnlog.PageNumber(40*csnlog.XactsPerPage, 5)
	pg, err := st.ReadPage(pagestore.CSN, pageno)
	if err != nil {
		t.Fatalf("ReadPage(csn, %d) failed with %s", pageno, err)
	}
	if csn := csnlog.GetCSN(40*csnlog.XactsPerPage, pg); csn != 40*csnlog.XactsPerPage+1 {
		t.Errorf("GetCSN(%d) got %d want %d", 40*csnlog.XactsPerPage, csn,
			40*csnlog.XactsPerPage+1)
	}
}
