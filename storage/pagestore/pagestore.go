package pagestore

import (
	"encoding/binary"
	"fmt"
	"io"
	"strings"
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/leftmike/pgslru/clog"
	"github.com/leftmike/pgslru/csnlog"
	"github.com/leftmike/pgslru/multixact"
	"github.com/leftmike/pgslru/page"
	"github.com/leftmike/pgslru/slru"
	"github.com/leftmike/pgslru/storage/kv"
)

type Kind uint8

const (
	Clog Kind = iota + 1
	CSN
	MultiXactOffsets
	MultiXactMembers
)

var (
	Kinds = []Kind{Clog, CSN, MultiXactOffsets, MultiXactMembers}

	kindDirs = map[Kind]string{
		Clog:             "pg_xact",
		CSN:              "pg_csn",
		MultiXactOffsets: "pg_multixact/offsets",
		MultiXactMembers: "pg_multixact/members",
	}

	kindNames = map[string]Kind{
		"clog":    Clog,
		"xact":    Clog,
		"csn":     CSN,
		"csnlog":  CSN,
		"offsets": MultiXactOffsets,
		"members": MultiXactMembers,
	}
)

func (k Kind) String() string {
	if s, ok := kindDirs[k]; ok {
		return s
	}
	return fmt.Sprintf("Kind(%d)", uint8(k))
}

func ParseKind(s string) (Kind, error) {
	s = strings.ToLower(s)
	if k, ok := kindNames[s]; ok {
		return k, nil
	}
	for k, dir := range kindDirs {
		if s == dir {
			return k, nil
		}
	}
	return 0, fmt.Errorf("pagestore: unknown slru: %s", s)
}

// TruncatePrecedes is the ordering used to decide whether a segment of this
// kind is older than a cutoff page.
func (k Kind) TruncatePrecedes() slru.PagePrecedesFunc {
	switch k {
	case Clog:
		return clog.PagePrecedes
	case CSN:
		return csnlog.TruncatePrecedes
	case MultiXactOffsets:
		return multixact.OffsetPagePrecedes
	case MultiXactMembers:
		return multixact.MemberTruncatePrecedes
	}
	panic(fmt.Sprintf("pagestore: unexpected kind: %d", k))
}

type pageKey struct {
	kind   Kind
	pageno uint32
}

type pageLock struct {
	mutex sync.Mutex
	refs  int
}

// Store keeps SLRU pages in a kv.KV. Pages have a single writer at a time;
// readers get a copy and never see a write in progress.
type Store struct {
	kv    kv.KV
	mutex sync.Mutex
	locks map[pageKey]*pageLock
}

func NewStore(kvst kv.KV) *Store {
	return &Store{
		kv:    kvst,
		locks: map[pageKey]*pageLock{},
	}
}

func (st *Store) Close() error {
	return st.kv.Close()
}

func makeKey(kind Kind, pageno uint32) []byte {
	key := make([]byte, 5)
	key[0] = byte(kind)
	binary.BigEndian.PutUint32(key[1:], pageno)
	return key
}

func parseKey(key []byte) (Kind, uint32, error) {
	if len(key) != 5 {
		return 0, 0, fmt.Errorf("pagestore: key wrong length: %v", key)
	}
	return Kind(key[0]), binary.BigEndian.Uint32(key[1:]), nil
}

func (st *Store) lockPage(kind Kind, pageno uint32) func() {
	pk := pageKey{kind, pageno}

	st.mutex.Lock()
	pl, ok := st.locks[pk]
	if !ok {
		pl = &pageLock{}
		st.locks[pk] = pl
	}
	pl.refs += 1
	st.mutex.Unlock()

	pl.mutex.Lock()
	return func() {
		pl.mutex.Unlock()

		st.mutex.Lock()
		pl.refs -= 1
		if pl.refs == 0 {
			delete(st.locks, pk)
		}
		st.mutex.Unlock()
	}
}

func loadPage(kind Kind, pageno uint32, val []byte) (page.Page, error) {
	pg := page.New()
	if val == nil {
		return pg, nil
	}
	if len(val) != page.BlockSize {
		return nil, fmt.Errorf("pagestore: %s page %d: got %d bytes want %d", kind, pageno,
			len(val), page.BlockSize)
	}
	copy(pg, val)
	return pg, nil
}

// ReadPage returns a copy of the page; a page which was never written reads as
// zeros.
func (st *Store) ReadPage(kind Kind, pageno uint32) (page.Page, error) {
	var pg page.Page
	err := st.kv.Get(makeKey(kind, pageno),
		func(val []byte) error {
			var err error
			pg, err = loadPage(kind, pageno, val)
			return err
		})
	if err == io.EOF {
		return page.New(), nil
	} else if err != nil {
		return nil, err
	}
	return pg, nil
}

// WritePage calls fn with a copy of the page and stores the result unless fn
// fails.
func (st *Store) WritePage(kind Kind, pageno uint32, fn func(pg page.Page) error) error {
	unlock := st.lockPage(kind, pageno)
	defer unlock()

	return st.kv.Update(makeKey(kind, pageno),
		func(val []byte) ([]byte, error) {
			pg, err := loadPage(kind, pageno, val)
			if err != nil {
				return nil, err
			}
			err = fn(pg)
			if err != nil {
				return nil, err
			}
			page.Check(pg)
			return pg, nil
		})
}

func (st *Store) ZeroPage(kind Kind, pageno uint32) error {
	unlock := st.lockPage(kind, pageno)
	defer unlock()

	return st.kv.Update(makeKey(kind, pageno),
		func(val []byte) ([]byte, error) {
			return page.New(), nil
		})
}

func (st *Store) pages(kind Kind, minPage, maxPage uint32) ([]uint32, error) {
	it, err := st.kv.Iterate(makeKey(kind, minPage), makeKey(kind, maxPage))
	if err != nil {
		return nil, err
	}
	defer it.Close()

	var pagenos []uint32
	for {
		err = it.Item(
			func(key, val []byte) error {
				k, pageno, err := parseKey(key)
				if err != nil {
					return err
				}
				if k != kind {
					return io.EOF
				}
				pagenos = append(pagenos, pageno)
				return nil
			})
		if err == io.EOF {
			return pagenos, nil
		} else if err != nil {
			return nil, err
		}
	}
}

// Segments returns the segment numbers, in ascending order, which contain at
// least one stored page.
func (st *Store) Segments(kind Kind) ([]uint32, error) {
	pagenos, err := st.pages(kind, 0, 0xFFFFFFFF)
	if err != nil {
		return nil, err
	}

	var segnos []uint32
	for _, pageno := range pagenos {
		segno := slru.SegmentNumber(pageno)
		if len(segnos) == 0 || segnos[len(segnos)-1] != segno {
			segnos = append(segnos, segno)
		}
	}
	return segnos, nil
}

func (st *Store) DeleteSegment(kind Kind, segno uint32) error {
	firstPage := slru.SegmentFirstPage(segno)
	pagenos, err := st.pages(kind, firstPage, firstPage+slru.PagesPerSegment-1)
	if err != nil {
		return err
	}

	for _, pageno := range pagenos {
		err = st.deletePage(kind, pageno)
		if err != nil {
			return err
		}
	}
	return nil
}

func (st *Store) deletePage(kind Kind, pageno uint32) error {
	unlock := st.lockPage(kind, pageno)
	defer unlock()

	return st.kv.Update(makeKey(kind, pageno),
		func(val []byte) ([]byte, error) {
			return nil, nil
		})
}

// Truncate deletes every segment which is entirely older than cutoffPage and
// returns the number of segments deleted. The cutoff is chosen by the caller.
func (st *Store) Truncate(kind Kind, cutoffPage uint32, precedes slru.PagePrecedesFunc) (int,
	error) {

	segnos, err := st.Segments(kind)
	if err != nil {
		return 0, err
	}

	var cnt int
	for _, segno := range segnos {
		if !slru.MayDeleteSegment(slru.SegmentFirstPage(segno), cutoffPage, precedes) {
			continue
		}

		err = st.DeleteSegment(kind, segno)
		if err != nil {
			return cnt, err
		}
		cnt += 1

		log.WithFields(log.Fields{
			"slru":    kind.String(),
			"segment": slru.SegmentFileName(segno),
			"cutoff":  cutoffPage,
		}).Debug("deleted segment")
	}
	return cnt, nil
}
