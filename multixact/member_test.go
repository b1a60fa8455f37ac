package multixact_test

import (
	"math"
	"math/rand"
	"testing"

	"github.com/leftmike/pgslru/multixact"
	"github.com/leftmike/pgslru/page"
	"github.com/leftmike/pgslru/transam"
)

func TestMemberAddressing(t *testing.T) {
	// These values match the MXOffsetTo* macros of the reference server.
	cases := []struct {
		off           transam.MultiXactOffset
		region        uint32
		segment       int32
		pageno        uint32
		flagsOffset   int
		flagsBitShift uint
		memberOffset  int
	}{
		{off: 0, region: 0, segment: 0, pageno: 0, flagsOffset: 0, flagsBitShift: 0,
			memberOffset: 4},
		{off: 1, region: 0, segment: 0, pageno: 0, flagsOffset: 0, flagsBitShift: 8,
			memberOffset: 8},
		{off: 123456789, region: 0, segment: 150924, pageno: 4829568, flagsOffset: 4780,
			flagsBitShift: 8, memberOffset: 4788},
		{off: math.MaxUint32 - 1, region: 0, segment: 5250570, pageno: 168018240,
			flagsOffset: 5160, flagsBitShift: 16, memberOffset: 5172},
		{off: math.MaxUint32, region: 0, segment: 5250570, pageno: 168018240,
			flagsOffset: 5160, flagsBitShift: 24, memberOffset: 5176},
		{off: 1636, region: 0, segment: 2, pageno: 64, flagsOffset: 0, flagsBitShift: 0,
			memberOffset: 4},
		{off: 1636, region: 7, segment: 2, pageno: 71, flagsOffset: 0, flagsBitShift: 0,
			memberOffset: 4},
		{off: math.MaxUint32, region: 63, segment: 5250571, pageno: 168018303,
			flagsOffset: 5160, flagsBitShift: 24, memberOffset: 5176},
	}

	for _, c := range cases {
		if segment := multixact.MemberSegment(c.off, c.region); segment != c.segment {
			t.Errorf("MemberSegment(%d, %d) got %d want %d", c.off, c.region, segment,
				c.segment)
		}
		if pageno := multixact.MemberPage(c.off, c.region); pageno != c.pageno {
			t.Errorf("MemberPage(%d, %d) got %d want %d", c.off, c.region, pageno, c.pageno)
		}
		if flagsOffset := multixact.FlagsOffset(c.off); flagsOffset != c.flagsOffset {
			t.Errorf("FlagsOffset(%d) got %d want %d", c.off, flagsOffset, c.flagsOffset)
		}
		if bshift := multixact.FlagsBitShift(c.off); bshift != c.flagsBitShift {
			t.Errorf("FlagsBitShift(%d) got %d want %d", c.off, bshift, c.flagsBitShift)
		}
		if memberOffset := multixact.MemberOffset(c.off); memberOffset != c.memberOffset {
			t.Errorf("MemberOffset(%d) got %d want %d", c.off, memberOffset, c.memberOffset)
		}
	}
}

func TestGroupsTilePage(t *testing.T) {
	if multixact.GroupSize != 20 || multixact.GroupsPerPage != 409 ||
		multixact.MembersPerPage != 1636 {

		t.Errorf("group geometry got %d, %d, %d want 20, 409, 1636", multixact.GroupSize,
			multixact.GroupsPerPage, multixact.MembersPerPage)
	}

	seen := map[int]transam.MultiXactOffset{}
	for off := transam.MultiXactOffset(0); off < multixact.MembersPerPage; off += 1 {
		mo := multixact.MemberOffset(off)
		if mo+4 > page.BlockSize {
			t.Fatalf("MemberOffset(%d) got %d: past end of page", off, mo)
		}
		if prev, ok := seen[mo]; ok {
			t.Fatalf("MemberOffset(%d) and MemberOffset(%d) both %d", prev, off, mo)
		}
		seen[mo] = off

		fo := multixact.FlagsOffset(off) + int(multixact.FlagsBitShift(off)/8)
		if _, ok := seen[fo]; ok {
			t.Fatalf("flags byte of %d at %d overlaps a member", off, fo)
		}
	}
}

func TestMemberRoundTrip(t *testing.T) {
	rnd := rand.New(rand.NewSource(5))

	for n := 0; n < 200; n += 1 {
		pg := page.New()
		rnd.Read(pg)
		before := pg.Copy()

		off := transam.MultiXactOffset(rnd.Uint32())
		m := multixact.Member{
			Xid:    transam.TransactionID(rnd.Uint32()),
			Status: multixact.MemberStatus(rnd.Intn(6)),
		}
		multixact.SetMember(off, m, pg)

		if got := multixact.GetMember(off, pg); got != m {
			t.Errorf("GetMember(%d) got %v want %v", off, got, m)
		}

		base := off - off%multixact.MembersPerPage
		for i := transam.MultiXactOffset(0); i < multixact.MembersPerPage; i += 1 {
			other := base + i
			if other == off {
				continue
			}
			if multixact.GetMember(other, pg) != multixact.GetMember(other, before) {
				t.Fatalf("SetMember(%d) changed member %d", off, other)
			}
		}
	}
}

func TestMemberStatus(t *testing.T) {
	for ms := multixact.StatusForKeyShare; ms <= multixact.StatusUpdate; ms += 1 {
		p, err := multixact.ParseMemberStatus(ms.String())
		if err != nil {
			t.Errorf("ParseMemberStatus(%s) failed with %s", ms, err)
		} else if p != ms {
			t.Errorf("ParseMemberStatus(%s) got %s", ms, p)
		}
	}
	if _, err := multixact.ParseMemberStatus("exclusive"); err == nil {
		t.Errorf("ParseMemberStatus(exclusive) did not fail")
	}
	if multixact.StatusForUpdate.IsUpdate() || !multixact.StatusNoKeyUpdate.IsUpdate() {
		t.Errorf("IsUpdate() got the wrong answer")
	}
}

func TestMemberPagePrecedes(t *testing.T) {
	cases := []struct {
		p1, p2 uint32
		r      bool
	}{
		{p1: 0, p2: 0, r: false},
		{p1: 0, p2: 64, r: true},
		{p1: 64, p2: 0, r: false},
		{p1: 1, p2: 64, r: false},
		{p1: 5, p2: 69, r: true},
	}

	for _, c := range cases {
		r := multixact.MemberPagePrecedes(c.p1, c.p2)
		if r != c.r {
			t.Errorf("MemberPagePrecedes(%d, %d) got %v want %v", c.p1, c.p2, r, c.r)
		}
	}

	if !multixact.MayDeleteMemberSegment(0, 64) {
		t.Errorf("MayDeleteMemberSegment(0, 64) got false want true")
	}
	if multixact.MayDeleteMemberSegment(64, 64) {
		t.Errorf("MayDeleteMemberSegment(64, 64) got true want false")
	}
}
