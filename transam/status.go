package transam

import (
	"fmt"
	"strings"
)

// XidStatus is the two bit commit status kept for every transaction.
type XidStatus uint8

const (
	StatusInProgress   XidStatus = 0x00
	StatusCommitted    XidStatus = 0x01
	StatusAborted      XidStatus = 0x02
	StatusSubCommitted XidStatus = 0x03
)

var statusNames = map[XidStatus]string{
	StatusInProgress:   "in-progress",
	StatusCommitted:    "committed",
	StatusAborted:      "aborted",
	StatusSubCommitted: "sub-committed",
}

func (st XidStatus) String() string {
	if s, ok := statusNames[st]; ok {
		return s
	}
	return fmt.Sprintf("XidStatus(%d)", uint8(st))
}

func (st XidStatus) Valid() bool {
	return st <= StatusSubCommitted
}

func ParseXidStatus(s string) (XidStatus, error) {
	s = strings.ToLower(s)
	for st, n := range statusNames {
		if s == n || s == strings.Replace(n, "-", "", -1) {
			return st, nil
		}
	}
	switch s {
	case "0", "1", "2", "3":
		return XidStatus(s[0] - '0'), nil
	}
	return StatusInProgress, fmt.Errorf("transam: bad transaction status: %s", s)
}
