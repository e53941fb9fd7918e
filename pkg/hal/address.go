package hal

import (
	"fmt"
	"strconv"
	"strings"
)

// Address is a 48-bit Bluetooth peer address held in the low bits of a uint64.
type Address uint64

const addressMask = 1<<48 - 1

func (a Address) String() string {
	v := uint64(a) & addressMask
	return fmt.Sprintf("%02X:%02X:%02X:%02X:%02X:%02X",
		byte(v>>40), byte(v>>32), byte(v>>24), byte(v>>16), byte(v>>8), byte(v))
}

// ParseAddress parses "AA:BB:CC:DD:EE:FF" (or '-' separated), case-insensitive.
func ParseAddress(s string) (Address, error) {
	parts := strings.FieldsFunc(strings.TrimSpace(s), func(r rune) bool { return r == ':' || r == '-' })
	if len(parts) != 6 {
		return 0, fmt.Errorf("invalid address %q: want 6 octets, got %d", s, len(parts))
	}
	var v uint64
	for _, p := range parts {
		if len(p) != 2 {
			return 0, fmt.Errorf("invalid address %q: bad octet %q", s, p)
		}
		b, err := strconv.ParseUint(p, 16, 8)
		if err != nil {
			return 0, fmt.Errorf("invalid address %q: %w", s, err)
		}
		v = v<<8 | b
	}
	return Address(v), nil
}

// MustParseAddress is like ParseAddress but panics on malformed input.
func MustParseAddress(s string) Address {
	a, err := ParseAddress(s)
	if err != nil {
		panic(err)
	}
	return a
}

// CopyOut implements the buffer-filling convention shared by HAL operations:
// a nil dst reports the required length, a short dst reports
// StatusInvalidArgument without writing, otherwise src is copied.
func CopyOut(dst, src []byte) (int, Status) {
	if dst == nil {
		return len(src), StatusOK
	}
	if len(dst) < len(src) {
		return len(src), StatusInvalidArgument
	}
	return copy(dst, src), StatusOK
}
