package transam

import (
	"fmt"
	"strconv"
)

type TransactionID uint32

type MultiXactID uint32

// MultiXactOffset indexes the members SLRU; it wraps like a TransactionID.
type MultiXactOffset uint32

const (
	InvalidTransactionID     TransactionID = 0
	BootstrapTransactionID   TransactionID = 1
	FrozenTransactionID      TransactionID = 2
	FirstNormalTransactionID TransactionID = 3
	MaxTransactionID         TransactionID = 0xFFFFFFFF

	InvalidMultiXactID MultiXactID     = 0
	FirstMultiXactID   MultiXactID     = 1
	MaxMultiXactID     MultiXactID     = 0xFFFFFFFF
	MaxMultiXactOffset MultiXactOffset = 0xFFFFFFFF
)

func (xid TransactionID) IsValid() bool {
	return xid != InvalidTransactionID
}

func (xid TransactionID) IsNormal() bool {
	return xid >= FirstNormalTransactionID
}

func (xid TransactionID) String() string {
	return strconv.FormatUint(uint64(xid), 10)
}

// Advance returns the next transaction id, skipping the reserved ids when
// the counter wraps around.
func (xid TransactionID) Advance() TransactionID {
	xid += 1
	if xid < FirstNormalTransactionID {
		xid = FirstNormalTransactionID
	}
	return xid
}

// Precedes reports whether a is logically older than b. The difference is
// taken modulo 2^32 and read as a signed 32 bit value, so the answer is only
// meaningful when a and b are less than 2^31 apart; it is not a total order
// over all identifiers. Reserved identifiers get no special treatment: callers
// which care about InvalidTransactionID must check for it themselves.
func Precedes(a, b TransactionID) bool {
	return int32(a-b) < 0
}

func PrecedesOrEquals(a, b TransactionID) bool {
	return int32(a-b) <= 0
}

func Follows(a, b TransactionID) bool {
	return int32(a-b) > 0
}

func FollowsOrEquals(a, b TransactionID) bool {
	return int32(a-b) >= 0
}

func MultiXactIDPrecedes(a, b MultiXactID) bool {
	return int32(a-b) < 0
}

func MultiXactOffsetPrecedes(a, b MultiXactOffset) bool {
	return int32(a-b) < 0
}

func ParseTransactionID(s string) (TransactionID, error) {
	n, err := strconv.ParseUint(s, 0, 32)
	if err != nil {
		return InvalidTransactionID, fmt.Errorf("transam: bad transaction id: %s", s)
	}
	return TransactionID(n), nil
}
