/*
Package multixact addresses the multixact SLRUs. The offsets log maps a
multixact id to the offset of its first member. The members log stores the
members in groups: four flag bytes, one per member, followed by the four
member transaction ids. Groups never straddle a page, leaving a few unused
bytes at the end of every members page.

Member pages are interleaved across regions the same way as csnlog pages.
*/
package multixact

import (
	"encoding/binary"
	"fmt"

	"github.com/leftmike/pgslru/page"
	"github.com/leftmike/pgslru/slru"
	"github.com/leftmike/pgslru/transam"
)

const (
	MemberBitsPerXact  = 8
	MemberFlagsPerByte = 1
	FlagBytesPerGroup  = 4
	MembersPerGroup    = FlagBytesPerGroup * MemberFlagsPerByte
	// size in bytes of a complete group
	GroupSize      = 4*MembersPerGroup + FlagBytesPerGroup
	GroupsPerPage  = page.BlockSize / GroupSize
	MembersPerPage = GroupsPerPage * MembersPerGroup

	memberFlagsMask = (1 << MemberBitsPerXact) - 1
)

type MemberStatus uint8

const (
	StatusForKeyShare    MemberStatus = 0x00
	StatusForShare       MemberStatus = 0x01
	StatusForNoKeyUpdate MemberStatus = 0x02
	StatusForUpdate      MemberStatus = 0x03
	StatusNoKeyUpdate    MemberStatus = 0x04
	StatusUpdate         MemberStatus = 0x05
)

var memberStatusNames = [...]string{
	StatusForKeyShare:    "for-key-share",
	StatusForShare:       "for-share",
	StatusForNoKeyUpdate: "for-no-key-update",
	StatusForUpdate:      "for-update",
	StatusNoKeyUpdate:    "no-key-update",
	StatusUpdate:         "update",
}

func (ms MemberStatus) String() string {
	if int(ms) < len(memberStatusNames) {
		return memberStatusNames[ms]
	}
	return fmt.Sprintf("MemberStatus(%d)", uint8(ms))
}

func (ms MemberStatus) IsUpdate() bool {
	return ms > StatusForUpdate
}

func ParseMemberStatus(s string) (MemberStatus, error) {
	for ms, n := range memberStatusNames {
		if s == n {
			return MemberStatus(ms), nil
		}
	}
	return 0, fmt.Errorf("multixact: bad member status: %s", s)
}

type Member struct {
	Xid    transam.TransactionID
	Status MemberStatus
}

// FlagsOffset is the byte offset within its page of the group holding off.
func FlagsOffset(off transam.MultiXactOffset) int {
	return int((uint32(off) / MembersPerGroup) % GroupsPerPage * GroupSize)
}

// FlagsBitShift is the position of the flags of off within the group's flags
// word.
func FlagsBitShift(off transam.MultiXactOffset) uint {
	return uint(uint32(off)%MembersPerGroup) * MemberBitsPerXact
}

// MemberOffset is the byte offset within its page of the transaction id of
// off.
func MemberOffset(off transam.MultiXactOffset) int {
	return FlagsOffset(off) + FlagBytesPerGroup + int(uint32(off)%MembersPerGroup)*4
}

func MemberPage(off transam.MultiXactOffset, region uint32) uint32 {
	return slru.RegionPage(uint32(off)/MembersPerPage, region)
}

func MemberSegment(off transam.MultiXactOffset, region uint32) int32 {
	return int32(MemberPage(off, region) / slru.PagesPerSegment)
}

// SetMember stores m as member off in pg, which must be the members page
// holding off. The flags of the other members of the group are unchanged.
func SetMember(off transam.MultiXactOffset, m Member, pg page.Page) {
	page.Check(pg)

	flagsOff := FlagsOffset(off)
	bshift := FlagsBitShift(off)
	flags := binary.LittleEndian.Uint32(pg[flagsOff:])
	flags &^= memberFlagsMask << bshift
	flags |= uint32(m.Status) << bshift
	binary.LittleEndian.PutUint32(pg[flagsOff:], flags)

	binary.LittleEndian.PutUint32(pg[MemberOffset(off):], uint32(m.Xid))
}

func GetMember(off transam.MultiXactOffset, pg page.Page) Member {
	page.Check(pg)

	flags := binary.LittleEndian.Uint32(pg[FlagsOffset(off):])
	return Member{
		Xid:    transam.TransactionID(binary.LittleEndian.Uint32(pg[MemberOffset(off):])),
		Status: MemberStatus((flags >> FlagsBitShift(off)) & memberFlagsMask),
	}
}

func localMemberPagePrecedes(local1, local2 uint32) bool {
	off1 := transam.MultiXactOffset(local1 * MembersPerPage)
	off2 := transam.MultiXactOffset(local2 * MembersPerPage)
	return transam.MultiXactOffsetPrecedes(off1, off2) &&
		transam.MultiXactOffsetPrecedes(off1, off2+MembersPerPage-1)
}

// MemberPagePrecedes orders members pages of the same region.
func MemberPagePrecedes(page1, page2 uint32) bool {
	return slru.InRegion(localMemberPagePrecedes)(page1, page2)
}

func MemberTruncatePrecedes(page1, cutoffPage uint32) bool {
	return slru.AcrossRegions(localMemberPagePrecedes)(page1, cutoffPage)
}

func MayDeleteMemberSegment(segPage, cutoffPage uint32) bool {
	return slru.MayDeleteSegment(segPage, cutoffPage, MemberTruncatePrecedes)
}
