package page

import (
	"fmt"
)

const (
	BlockSize = 8192
)

// Page is one block of an SLRU. A Page passed to a codec is exclusively
// borrowed for the duration of the call; codecs never retain or resize it.
type Page []byte

func New() Page {
	return make(Page, BlockSize)
}

func (pg Page) Copy() Page {
	return append(make(Page, 0, BlockSize), pg...)
}

func (pg Page) IsZero() bool {
	for _, b := range pg {
		if b != 0 {
			return false
		}
	}
	return true
}

// Check panics unless pg is exactly one block long.
func Check(pg Page) {
	if len(pg) != BlockSize {
		panic(fmt.Sprintf("page: got %d bytes want %d", len(pg), BlockSize))
	}
}
