/*
Package clog encodes the commit log: two bits of status for every transaction,
four transactions to a byte, packed into SLRU pages in exactly the layout the
reference server reads from pg_xact.
*/
package clog

import (
	"github.com/leftmike/pgslru/page"
	"github.com/leftmike/pgslru/slru"
	"github.com/leftmike/pgslru/transam"
)

const (
	BitsPerXact  = 2
	XactsPerByte = 4
	XactsPerPage = page.BlockSize * XactsPerByte
	XactBitmask  = (1 << BitsPerXact) - 1

	// WAL record info codes of the commit log resource manager.
	ZeroPage = 0x00
	Truncate = 0x10
)

func PageNumber(xid transam.TransactionID) uint32 {
	return uint32(xid) / XactsPerPage
}

func location(xid transam.TransactionID) (int, uint) {
	byteno := (uint32(xid) % XactsPerPage) / XactsPerByte
	bshift := (uint32(xid) % XactsPerByte) * BitsPerXact
	return int(byteno), uint(bshift)
}

// SetStatus stores the status of xid in pg, which must be the page holding
// xid. Only the two bits belonging to xid change.
func SetStatus(xid transam.TransactionID, status transam.XidStatus, pg page.Page) {
	page.Check(pg)

	byteno, bshift := location(xid)
	pg[byteno] = (pg[byteno] &^ (XactBitmask << bshift)) | ((byte(status) & XactBitmask) << bshift)
}

func GetStatus(xid transam.TransactionID, pg page.Page) transam.XidStatus {
	page.Check(pg)

	byteno, bshift := location(xid)
	return transam.XidStatus((pg[byteno] >> bshift) & XactBitmask)
}

// PagePrecedes compares pages by the first normal transaction id each could
// hold. The cutoff may land part way through page2, so page1 must also
// precede the last transaction id of page2.
func PagePrecedes(page1, page2 uint32) bool {
	xid1 := transam.TransactionID(page1*XactsPerPage) + transam.FirstNormalTransactionID + 1
	xid2 := transam.TransactionID(page2*XactsPerPage) + transam.FirstNormalTransactionID + 1

	return transam.Precedes(xid1, xid2) && transam.Precedes(xid1, xid2+XactsPerPage-1)
}

// MayDeleteSegment reports whether the commit log segment starting at segPage
// holds only transactions older than cutoffPage.
func MayDeleteSegment(segPage, cutoffPage uint32) bool {
	return slru.MayDeleteSegment(segPage, cutoffPage, PagePrecedes)
}
