package redo

import (
	"errors"
	"fmt"
	"io"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/leftmike/pgslru/multixact"
	"github.com/leftmike/pgslru/storage/pagestore"
	"github.com/leftmike/pgslru/transam"
)

type Kind uint8

const (
	XactStatus Kind = iota + 1
	CSN
	MultiXactCreate
	ZeroPage
	Truncate
)

var kindNames = map[Kind]string{
	XactStatus:      "xact-status",
	CSN:             "csn",
	MultiXactCreate: "multixact-create",
	ZeroPage:        "zero-page",
	Truncate:        "truncate",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("Kind(%d)", uint8(k))
}

// Record is a decoded log record which changes SLRU pages. Which fields are
// used depends on Kind:
//   XactStatus: Xid, Subxids, Status
//   CSN: Xid, Subxids, CSN, Region
//   MultiXactCreate: MultiXact, Offset, Members, Region
//   ZeroPage and Truncate: SLRU, Page
type Record struct {
	Kind      Kind
	Xid       transam.TransactionID
	Subxids   []transam.TransactionID
	Status    transam.XidStatus
	CSN       uint64
	Region    uint32
	MultiXact transam.MultiXactID
	Offset    transam.MultiXactOffset
	Members   []multixact.Member
	SLRU      pagestore.Kind
	Page      uint32
}

const (
	kindField      protowire.Number = 1
	xidField       protowire.Number = 2
	subxidsField   protowire.Number = 3
	statusField    protowire.Number = 4
	csnField       protowire.Number = 5
	regionField    protowire.Number = 6
	multiXactField protowire.Number = 7
	offsetField    protowire.Number = 8
	membersField   protowire.Number = 9
	slruField      protowire.Number = 10
	pageField      protowire.Number = 11

	memberXidField    protowire.Number = 1
	memberStatusField protowire.Number = 2

	maxRecordSize = 1 << 24
)

var (
	errBadRecord = errors.New("redo: bad record")
)

func appendVarintField(buf []byte, num protowire.Number, v uint64) []byte {
	if v == 0 {
		return buf
	}
	buf = protowire.AppendTag(buf, num, protowire.VarintType)
	return protowire.AppendVarint(buf, v)
}

func (rec *Record) Marshal() []byte {
	var buf []byte

	buf = appendVarintField(buf, kindField, uint64(rec.Kind))
	buf = appendVarintField(buf, xidField, uint64(rec.Xid))
	if len(rec.Subxids) > 0 {
		var packed []byte
		for _, xid := range rec.Subxids {
			packed = protowire.AppendVarint(packed, uint64(xid))
		}
		buf = protowire.AppendTag(buf, subxidsField, protowire.BytesType)
		buf = protowire.AppendBytes(buf, packed)
	}
	buf = appendVarintField(buf, statusField, uint64(rec.Status))
	if rec.CSN != 0 {
		buf = protowire.AppendTag(buf, csnField, protowire.Fixed64Type)
		buf = protowire.AppendFixed64(buf, rec.CSN)
	}
	buf = appendVarintField(buf, regionField, uint64(rec.Region))
	buf = appendVarintField(buf, multiXactField, uint64(rec.MultiXact))
	buf = appendVarintField(buf, offsetField, uint64(rec.Offset))
	for _, m := range rec.Members {
		var mbuf []byte
		mbuf = appendVarintField(mbuf, memberXidField, uint64(m.Xid))
		mbuf = appendVarintField(mbuf, memberStatusField, uint64(m.Status))
		buf = protowire.AppendTag(buf, membersField, protowire.BytesType)
		buf = protowire.AppendBytes(buf, mbuf)
	}
	buf = appendVarintField(buf, slruField, uint64(rec.SLRU))
	buf = appendVarintField(buf, pageField, uint64(rec.Page))

	return buf
}

func consumeUint32(buf []byte, typ protowire.Type) (uint32, int) {
	if typ != protowire.VarintType {
		return 0, -1
	}
	v, n := protowire.ConsumeVarint(buf)
	if n < 0 {
		return 0, n
	}
	if v > 0xFFFFFFFF {
		return 0, -1
	}
	return uint32(v), n
}

func unmarshalMember(buf []byte) (multixact.Member, error) {
	var m multixact.Member
	for len(buf) > 0 {
		num, typ, n := protowire.ConsumeTag(buf)
		if n < 0 {
			return m, errBadRecord
		}
		buf = buf[n:]

		var v uint32
		switch num {
		case memberXidField:
			v, n = consumeUint32(buf, typ)
			m.Xid = transam.TransactionID(v)
		case memberStatusField:
			v, n = consumeUint32(buf, typ)
			m.Status = multixact.MemberStatus(v)
		default:
			n = protowire.ConsumeFieldValue(num, typ, buf)
		}
		if n < 0 {
			return m, errBadRecord
		}
		buf = buf[n:]
	}
	return m, nil
}

func unmarshalSubxids(buf []byte) ([]transam.TransactionID, error) {
	var subxids []transam.TransactionID
	for len(buf) > 0 {
		v, n := consumeUint32(buf, protowire.VarintType)
		if n < 0 {
			return nil, errBadRecord
		}
		subxids = append(subxids, transam.TransactionID(v))
		buf = buf[n:]
	}
	return subxids, nil
}

// UnmarshalRecord decodes a record; unknown fields are skipped.
func UnmarshalRecord(buf []byte) (*Record, error) {
	var rec Record
	for len(buf) > 0 {
		num, typ, n := protowire.ConsumeTag(buf)
		if n < 0 {
			return nil, fmt.Errorf("redo: bad record: %s", protowire.ParseError(n))
		}
		buf = buf[n:]

		var v uint32
		switch num {
		case kindField:
			v, n = consumeUint32(buf, typ)
			rec.Kind = Kind(v)
		case xidField:
			v, n = consumeUint32(buf, typ)
			rec.Xid = transam.TransactionID(v)
		case subxidsField:
			if typ == protowire.VarintType {
				v, n = consumeUint32(buf, typ)
				rec.Subxids = append(rec.Subxids, transam.TransactionID(v))
				break
			} else if typ != protowire.BytesType {
				n = -1
				break
			}

			var packed []byte
			packed, n = protowire.ConsumeBytes(buf)
			if n < 0 {
				break
			}
			subxids, err := unmarshalSubxids(packed)
			if err != nil {
				return nil, err
			}
			rec.Subxids = append(rec.Subxids, subxids...)
		case statusField:
			v, n = consumeUint32(buf, typ)
			rec.Status = transam.XidStatus(v)
		case csnField:
			if typ != protowire.Fixed64Type {
				n = -1
				break
			}
			rec.CSN, n = protowire.ConsumeFixed64(buf)
		case regionField:
			rec.Region, n = consumeUint32(buf, typ)
		case multiXactField:
			v, n = consumeUint32(buf, typ)
			rec.MultiXact = transam.MultiXactID(v)
		case offsetField:
			v, n = consumeUint32(buf, typ)
			rec.Offset = transam.MultiXactOffset(v)
		case membersField:
			if typ != protowire.BytesType {
				n = -1
				break
			}

			var mbuf []byte
			mbuf, n = protowire.ConsumeBytes(buf)
			if n < 0 {
				break
			}
			m, err := unmarshalMember(mbuf)
			if err != nil {
				return nil, err
			}
			rec.Members = append(rec.Members, m)
		case slruField:
			v, n = consumeUint32(buf, typ)
			rec.SLRU = pagestore.Kind(v)
		case pageField:
			rec.Page, n = consumeUint32(buf, typ)
		default:
			n = protowire.ConsumeFieldValue(num, typ, buf)
		}
		if n < 0 {
			return nil, fmt.Errorf("redo: bad record: field %d", num)
		}
		buf = buf[n:]
	}

	return &rec, nil
}

// WriteRecord writes rec prefixed by its length as a varint.
func WriteRecord(w io.Writer, rec *Record) error {
	body := rec.Marshal()
	buf := protowire.AppendVarint(make([]byte, 0, len(body)+4), uint64(len(body)))
	_, err := w.Write(append(buf, body...))
	return err
}

func readLength(r io.Reader) (int, error) {
	var buf []byte
	b := make([]byte, 1)
	for {
		_, err := io.ReadFull(r, b)
		if err == io.EOF {
			if len(buf) == 0 {
				return 0, io.EOF
			}
			return 0, io.ErrUnexpectedEOF
		} else if err != nil {
			return 0, err
		}

		buf = append(buf, b[0])
		if b[0] < 0x80 {
			break
		}
		if len(buf) == protowire.SizeVarint(maxRecordSize) {
			return 0, errBadRecord
		}
	}

	v, n := protowire.ConsumeVarint(buf)
	if n < 0 || v > maxRecordSize {
		return 0, fmt.Errorf("redo: bad record length: %v", buf)
	}
	return int(v), nil
}

// ReadRecord reads one record written by WriteRecord. It returns io.EOF only
// when r is exhausted at a record boundary.
func ReadRecord(r io.Reader) (*Record, error) {
	length, err := readLength(r)
	if err != nil {
		return nil, err
	}

	buf := make([]byte, length)
	_, err = io.ReadFull(r, buf)
	if err == io.EOF {
		return nil, io.ErrUnexpectedEOF
	} else if err != nil {
		return nil, err
	}
	return UnmarshalRecord(buf)
}
