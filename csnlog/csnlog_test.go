package csnlog_test

import (
	"bytes"
	"math"
	"math/rand"
	"testing"

	"github.com/leftmike/pgslru/csnlog"
	"github.com/leftmike/pgslru/page"
	"github.com/leftmike/pgslru/transam"
)

func TestCSNLayout(t *testing.T) {
	cases := []struct {
		xid    transam.TransactionID
		csn    uint64
		offset int
	}{
		{xid: 0, csn: 0x0102030405060708, offset: 0},
		{xid: 1, csn: 1, offset: 8},
		{xid: 1023, csn: math.MaxUint64, offset: 8184},
		{xid: 1025, csn: 0xFF, offset: 8},
		{xid: math.MaxUint32, csn: 42, offset: 8184},
	}

	for _, c := range cases {
		pg := page.New()
		csnlog.SetCSN(c.xid, c.csn, pg)

		want := page.New()
		for i := 0; i < 8; i += 1 {
			want[c.offset+i] = byte(c.csn >> (8 * i))
		}
		if !bytes.Equal(pg, want) {
			t.Errorf("SetCSN(%d, %#x) wrote the wrong bytes", c.xid, c.csn)
		}
		if csn := csnlog.GetCSN(c.xid, pg); csn != c.csn {
			t.Errorf("GetCSN(%d) got %#x want %#x", c.xid, csn, c.csn)
		}
	}
}

func TestCSNRoundTrip(t *testing.T) {
	rnd := rand.New(rand.NewSource(3))

	for n := 0; n < 1000; n += 1 {
		pg := page.New()
		rnd.Read(pg)
		before := pg.Copy()

		xid := transam.TransactionID(rnd.Uint32())
		csn := rnd.Uint64()
		csnlog.SetCSN(xid, csn, pg)

		if got := csnlog.GetCSN(xid, pg); got != csn {
			t.Errorf("GetCSN(%d) got %#x want %#x", xid, got, csn)
		}

		off := int(uint32(xid)%csnlog.XactsPerPage) * csnlog.CSNSize
		if !bytes.Equal(pg[:off], before[:off]) ||
			!bytes.Equal(pg[off+csnlog.CSNSize:], before[off+csnlog.CSNSize:]) {
			t.Errorf("SetCSN(%d) changed other entries", xid)
		}
	}
}

func TestShortPage(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Errorf("GetCSN(short page) did not panic")
		}
	}()
	csnlog.GetCSN(1000, make(page.Page, 100))
}

func TestPageNumber(t *testing.T) {
	cases := []struct {
		xid    transam.TransactionID
		region uint32
		pageno uint32
	}{
		{xid: 0, region: 0, pageno: 0},
		{xid: 0, region: 5, pageno: 5},
		{xid: 1023, region: 0, pageno: 0},
		{xid: 1025, region: 3, pageno: 67},
		{xid: math.MaxUint32, region: 0, pageno: 268435392},
		{xid: math.MaxUint32, region: 63, pageno: 268435455},
	}

	for _, c := range cases {
		pageno := csnlog.PageNumber(c.xid, c.region)
		if pageno != c.pageno {
			t.Errorf("PageNumber(%d, %d) got %d want %d", c.xid, c.region, pageno, c.pageno)
		}
	}
}

func TestPagePrecedes(t *testing.T) {
	cases := []struct {
		p1, p2 uint32
		r      bool
	}{
		{p1: 0, p2: 0, r: false},
		{p1: 0, p2: 64, r: true},
		{p1: 64, p2: 0, r: false},
		{p1: 1, p2: 65, r: true},
		{p1: 0, p2: 65, r: false},
		{p1: 3, p2: 1000 * 64, r: false},
		{p1: 3, p2: 1000*64 + 3, r: true},
	}

	for _, c := range cases {
		r := csnlog.PagePrecedes(c.p1, c.p2)
		if r != c.r {
			t.Errorf("PagePrecedes(%d, %d) got %v want %v", c.p1, c.p2, r, c.r)
		}
	}
}

func TestMayDeleteSegment(t *testing.T) {
	cases := []struct {
		segPage, cutoff uint32
		r               bool
	}{
		{segPage: 0, cutoff: 0, r: false},
		{segPage: 0, cutoff: 63, r: false},
		{segPage: 0, cutoff: 64, r: true},
		{segPage: 32, cutoff: 64, r: true},
		{segPage: 32, cutoff: 100, r: true},
		{segPage: 64, cutoff: 64, r: false},
		{segPage: 64, cutoff: 128, r: true},
	}

	for _, c := range cases {
		r := csnlog.MayDeleteSegment(c.segPage, c.cutoff)
		if r != c.r {
			t.Errorf("MayDeleteSegment(%d, %d) got %v want %v", c.segPage, c.cutoff, r, c.r)
		}
	}
}
