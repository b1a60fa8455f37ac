package multixact

import (
	"encoding/binary"

	"github.com/leftmike/pgslru/page"
	"github.com/leftmike/pgslru/slru"
	"github.com/leftmike/pgslru/transam"
)

const (
	OffsetsPerPage = page.BlockSize / 4

	// WAL record info codes of the multixact resource manager.
	ZeroOffPage = 0x00
	ZeroMemPage = 0x10
	CreateID    = 0x20
	TruncateID  = 0x30
)

func OffsetPage(mxid transam.MultiXactID) uint32 {
	return uint32(mxid) / OffsetsPerPage
}

func OffsetEntry(mxid transam.MultiXactID) int {
	return int(uint32(mxid) % OffsetsPerPage)
}

func SetOffset(mxid transam.MultiXactID, off transam.MultiXactOffset, pg page.Page) {
	page.Check(pg)

	binary.LittleEndian.PutUint32(pg[OffsetEntry(mxid)*4:], uint32(off))
}

func GetOffset(mxid transam.MultiXactID, pg page.Page) transam.MultiXactOffset {
	page.Check(pg)

	return transam.MultiXactOffset(binary.LittleEndian.Uint32(pg[OffsetEntry(mxid)*4:]))
}

func OffsetPagePrecedes(page1, page2 uint32) bool {
	mxid1 := transam.MultiXactID(page1*OffsetsPerPage) + transam.FirstMultiXactID
	mxid2 := transam.MultiXactID(page2*OffsetsPerPage) + transam.FirstMultiXactID
	return transam.MultiXactIDPrecedes(mxid1, mxid2) &&
		transam.MultiXactIDPrecedes(mxid1, mxid2+OffsetsPerPage-1)
}

func MayDeleteOffsetSegment(segPage, cutoffPage uint32) bool {
	return slru.MayDeleteSegment(segPage, cutoffPage, OffsetPagePrecedes)
}
