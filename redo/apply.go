package redo

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"sort"

	log "github.com/sirupsen/logrus"

	"github.com/leftmike/pgslru/clog"
	"github.com/leftmike/pgslru/csnlog"
	"github.com/leftmike/pgslru/multixact"
	"github.com/leftmike/pgslru/page"
	"github.com/leftmike/pgslru/slru"
	"github.com/leftmike/pgslru/storage/pagestore"
	"github.com/leftmike/pgslru/transam"
)

// Applier writes the effects of log records to the SLRU pages of a store.
type Applier struct {
	st *pagestore.Store
}

func NewApplier(st *pagestore.Store) *Applier {
	return &Applier{
		st: st,
	}
}

// groupByPage returns the distinct page numbers of xids, in ascending order,
// along with the xids on each page.
func groupByPage(xids []transam.TransactionID,
	pageNumber func(xid transam.TransactionID) uint32) ([]uint32,
	map[uint32][]transam.TransactionID) {

	groups := map[uint32][]transam.TransactionID{}
	var pagenos []uint32
	for _, xid := range xids {
		pageno := pageNumber(xid)
		if _, ok := groups[pageno]; !ok {
			pagenos = append(pagenos, pageno)
		}
		groups[pageno] = append(groups[pageno], xid)
	}
	sort.Slice(pagenos, func(i, j int) bool { return pagenos[i] < pagenos[j] })
	return pagenos, groups
}

func (ap *Applier) setStatus(pageno uint32, xids []transam.TransactionID,
	status transam.XidStatus) error {

	return ap.st.WritePage(pagestore.Clog, pageno,
		func(pg page.Page) error {
			for _, xid := range xids {
				clog.SetStatus(xid, status, pg)
			}
			return nil
		})
}

// ApplyXactStatus sets the status of a transaction and its subtransactions.
// When a commit spans pages, the subtransactions on the other pages are first
// marked sub-committed, then the page holding xid is written, and finally the
// remaining subtransactions are marked committed.
func (ap *Applier) ApplyXactStatus(xid transam.TransactionID, subxids []transam.TransactionID,
	status transam.XidStatus) error {

	if !status.Valid() {
		return fmt.Errorf("redo: xid %d: bad status: %d", xid, status)
	}

	topPage := clog.PageNumber(xid)
	var topXids, otherXids []transam.TransactionID
	topXids = append(topXids, xid)
	for _, subxid := range subxids {
		if clog.PageNumber(subxid) == topPage {
			topXids = append(topXids, subxid)
		} else {
			otherXids = append(otherXids, subxid)
		}
	}

	pagenos, groups := groupByPage(otherXids, clog.PageNumber)
	if status == transam.StatusCommitted {
		for _, pageno := range pagenos {
			err := ap.setStatus(pageno, groups[pageno], transam.StatusSubCommitted)
			if err != nil {
				return err
			}
		}
	}

	err := ap.setStatus(topPage, topXids, status)
	if err != nil {
		return err
	}

	for _, pageno := range pagenos {
		err = ap.setStatus(pageno, groups[pageno], status)
		if err != nil {
			return err
		}
	}
	return nil
}

// ApplyCSN records csn for a transaction and its subtransactions in region.
func (ap *Applier) ApplyCSN(xid transam.TransactionID, subxids []transam.TransactionID,
	csn uint64, region uint32) error {

	if region >= slru.MaxRegions {
		return fmt.Errorf("redo: xid %d: bad region: %d", xid, region)
	}

	xids := append([]transam.TransactionID{xid}, subxids...)
	pagenos, groups := groupByPage(xids,
		func(xid transam.TransactionID) uint32 {
			return csnlog.PageNumber(xid, region)
		})

	for _, pageno := range pagenos {
		err := ap.st.WritePage(pagestore.CSN, pageno,
			func(pg page.Page) error {
				for _, xid := range groups[pageno] {
					csnlog.SetCSN(xid, csn, pg)
				}
				return nil
			})
		if err != nil {
			return err
		}
	}
	return nil
}

// ApplyMultiXactCreate records the offset of mxid and stores its members
// starting at that offset. Members may wrap past the end of the offset space.
func (ap *Applier) ApplyMultiXactCreate(mxid transam.MultiXactID, off transam.MultiXactOffset,
	members []multixact.Member, region uint32) error {

	if region >= slru.MaxRegions {
		return fmt.Errorf("redo: multixact %d: bad region: %d", mxid, region)
	}
	for _, m := range members {
		if m.Status > multixact.StatusUpdate {
			return fmt.Errorf("redo: multixact %d: member %d: bad status: %d", mxid, m.Xid,
				m.Status)
		}
	}

	err := ap.st.WritePage(pagestore.MultiXactOffsets, multixact.OffsetPage(mxid),
		func(pg page.Page) error {
			multixact.SetOffset(mxid, off, pg)
			return nil
		})
	if err != nil {
		return err
	}

	for len(members) > 0 {
		pageno := multixact.MemberPage(off, region)
		var n int
		err = ap.st.WritePage(pagestore.MultiXactMembers, pageno,
			func(pg page.Page) error {
				n = 0
				for n < len(members) && multixact.MemberPage(off+transam.MultiXactOffset(n),
					region) == pageno {

					multixact.SetMember(off+transam.MultiXactOffset(n), members[n], pg)
					n += 1
				}
				return nil
			})
		if err != nil {
			return err
		}

		members = members[n:]
		off += transam.MultiXactOffset(n)
	}
	return nil
}

func (ap *Applier) Apply(ctx context.Context, rec *Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	switch rec.Kind {
	case XactStatus:
		return ap.ApplyXactStatus(rec.Xid, rec.Subxids, rec.Status)
	case CSN:
		return ap.ApplyCSN(rec.Xid, rec.Subxids, rec.CSN, rec.Region)
	case MultiXactCreate:
		return ap.ApplyMultiXactCreate(rec.MultiXact, rec.Offset, rec.Members, rec.Region)
	case ZeroPage:
		if !validSLRU(rec.SLRU) {
			return fmt.Errorf("redo: zero page: bad slru: %d", rec.SLRU)
		}
		return ap.st.ZeroPage(rec.SLRU, rec.Page)
	case Truncate:
		if !validSLRU(rec.SLRU) {
			return fmt.Errorf("redo: truncate: bad slru: %d", rec.SLRU)
		}
		cnt, err := ap.st.Truncate(rec.SLRU, rec.Page, rec.SLRU.TruncatePrecedes())
		if err != nil {
			return err
		}
		log.WithFields(log.Fields{
			"slru":     rec.SLRU.String(),
			"cutoff":   rec.Page,
			"segments": cnt,
		}).Info("truncated")
		return nil
	}
	return fmt.Errorf("redo: unexpected record kind: %s", rec.Kind)
}

func validSLRU(kind pagestore.Kind) bool {
	for _, k := range pagestore.Kinds {
		if k == kind {
			return true
		}
	}
	return false
}

// Replay applies every record read from r and returns the number applied.
func (ap *Applier) Replay(ctx context.Context, r io.Reader) (int, error) {
	br := bufio.NewReader(r)

	var cnt int
	for {
		rec, err := ReadRecord(br)
		if err == io.EOF {
			break
		} else if err != nil {
			return cnt, fmt.Errorf("redo: record %d: %s", cnt, err)
		}

		err = ap.Apply(ctx, rec)
		if err != nil {
			log.WithFields(log.Fields{
				"record": cnt,
				"kind":   rec.Kind.String(),
			}).WithError(err).Error("apply failed")
			return cnt, err
		}
		cnt += 1
	}

	log.WithField("records", cnt).Info("replay complete")
	return cnt, nil
}
