package devhub

import (
	"bytes"
	"fmt"
	"strconv"
)

// U64 is a u64 that the contract may serialize either as a JSON number or as
// a decimal string.
type U64 uint64

func (u *U64) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*u = 0
		return nil
	}
	s := string(b)
	if len(b) >= 2 && b[0] == '"' && b[len(b)-1] == '"' {
		s = string(b[1 : len(b)-1])
	}
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return fmt.Errorf("devhub: invalid u64 %s: %w", string(b), err)
	}
	*u = U64(v)
	return nil
}

func (u U64) MarshalJSON() ([]byte, error) {
	return []byte(strconv.Quote(strconv.FormatUint(uint64(u), 10))), nil
}

// Int64 clamps into the signed range used by the store.
func (u U64) Int64() int64 {
	if u > 1<<63-1 {
		return 1<<63 - 1
	}
	return int64(u)
}
