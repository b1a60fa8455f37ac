// Package slru holds the segment conventions shared by the commit log, the
// CSN log, and the multixact logs: a fixed run of pages makes up a segment,
// and a segment is the unit that is discarded once it is old enough.
package slru

import (
	"fmt"
	"strconv"

	"github.com/leftmike/pgslru/page"
)

const (
	PagesPerSegment = 32
	SegmentSize     = page.BlockSize * PagesPerSegment
)

// PagePrecedesFunc reports whether every entry of page p1 is older than the
// entries of page p2. Each SLRU supplies its own.
type PagePrecedesFunc func(p1, p2 uint32) bool

func SegmentNumber(pageno uint32) uint32 {
	return pageno / PagesPerSegment
}

func SegmentFirstPage(segno uint32) uint32 {
	return segno * PagesPerSegment
}

func SegmentFileName(segno uint32) string {
	return fmt.Sprintf("%04X", segno)
}

func ParseSegmentFileName(name string) (uint32, error) {
	if len(name) < 4 || len(name) > 6 {
		return 0, fmt.Errorf("slru: bad segment file name: %s", name)
	}
	n, err := strconv.ParseUint(name, 16, 32)
	if err != nil {
		return 0, fmt.Errorf("slru: bad segment file name: %s", name)
	}
	return uint32(n), nil
}

// MayDeleteSegment reports whether the segment starting at segPage is entirely
// older than cutoffPage. Both the first and the last page of the segment must
// precede the cutoff. segPage must be the first page of a segment; anything
// else is a programming error and panics.
func MayDeleteSegment(segPage, cutoffPage uint32, precedes PagePrecedesFunc) bool {
	if segPage%PagesPerSegment != 0 {
		panic(fmt.Sprintf("slru: segment page %d is not a multiple of %d", segPage,
			PagesPerSegment))
	}

	lastPage := segPage + PagesPerSegment - 1
	return precedes(segPage, cutoffPage) && precedes(lastPage, cutoffPage)
}

// MaxRegions is the number of parallel addressing regions. Region-aware SLRUs
// interleave the pages of every region, so region r owns the physical pages
// p with p % MaxRegions == r.
const MaxRegions = 64

func RegionPage(localPage, region uint32) uint32 {
	return localPage*MaxRegions + region
}

func PageRegion(pageno uint32) uint32 {
	return pageno % MaxRegions
}

func RegionLocalPage(pageno uint32) uint32 {
	return pageno / MaxRegions
}

// InRegion adapts an ordering of region-local page numbers to physical pages.
// Pages of different regions are never ordered.
func InRegion(precedes PagePrecedesFunc) PagePrecedesFunc {
	return func(p1, p2 uint32) bool {
		if PageRegion(p1) != PageRegion(p2) {
			return false
		}
		return precedes(RegionLocalPage(p1), RegionLocalPage(p2))
	}
}

// AcrossRegions adapts an ordering of region-local page numbers so that a
// physical page is compared against the local page of the cutoff, whatever
// region either of them belongs to. Segments hold pages of several regions,
// so truncation uses this ordering.
func AcrossRegions(precedes PagePrecedesFunc) PagePrecedesFunc {
	return func(p1, cutoff uint32) bool {
		return precedes(RegionLocalPage(p1), RegionLocalPage(cutoff))
	}
}
