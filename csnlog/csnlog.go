/*
Package csnlog encodes the commit sequence number log: one little-endian
uint64 per transaction. Pages are interleaved across regions, so the page
holding a transaction depends on both its id and its region.
*/
package csnlog

import (
	"encoding/binary"

	"github.com/leftmike/pgslru/page"
	"github.com/leftmike/pgslru/slru"
	"github.com/leftmike/pgslru/transam"
)

const (
	CSNSize      = 8
	XactsPerPage = page.BlockSize / CSNSize
)

func PageNumber(xid transam.TransactionID, region uint32) uint32 {
	return slru.RegionPage(uint32(xid)/XactsPerPage, region)
}

func offset(xid transam.TransactionID) int {
	return int(uint32(xid)%XactsPerPage) * CSNSize
}

func SetCSN(xid transam.TransactionID, csn uint64, pg page.Page) {
	page.Check(pg)

	off := offset(xid)
	binary.LittleEndian.PutUint64(pg[off:off+CSNSize], csn)
}

func GetCSN(xid transam.TransactionID, pg page.Page) uint64 {
	page.Check(pg)

	off := offset(xid)
	return binary.LittleEndian.Uint64(pg[off : off+CSNSize])
}

func localPagePrecedes(local1, local2 uint32) bool {
	xid1 := transam.TransactionID(local1*XactsPerPage) + transam.FirstNormalTransactionID + 1
	xid2 := transam.TransactionID(local2*XactsPerPage) + transam.FirstNormalTransactionID + 1
	return transam.Precedes(xid1, xid2)
}

// PagePrecedes is false for pages of different regions; otherwise it compares
// the first normal transaction id of each page within the region.
func PagePrecedes(page1, page2 uint32) bool {
	return slru.InRegion(localPagePrecedes)(page1, page2)
}

// MayDeleteSegment reports whether every page of the segment starting at
// segPage is older than the cutoff, comparing each page against the cutoff's
// position within its own region.
func MayDeleteSegment(segPage, cutoffPage uint32) bool {
	return slru.MayDeleteSegment(segPage, cutoffPage, TruncatePrecedes)
}

func TruncatePrecedes(page1, cutoffPage uint32) bool {
	return slru.AcrossRegions(localPagePrecedes)(page1, cutoffPage)
}
