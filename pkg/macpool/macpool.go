package macpool

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/rookeryhq/rookery/pkg/types"
)

// SpaceSize is the number of addresses under one 3-byte vendor prefix
const SpaceSize = 1 << 24

// Prefix is the fixed vendor portion of generated hardware addresses
type Prefix [3]byte

// ParsePrefix parses a textual vendor prefix such as "aa:bb:cc". Parsing is
// case-insensitive; the prefix must be exactly three segments of exactly two
// hex digits each.
func ParsePrefix(s string) (Prefix, error) {
	var p Prefix
	parts := strings.Split(s, ":")
	if len(parts) != 3 {
		return p, fmt.Errorf("invalid mac prefix %q: expected 3 segments, got %d", s, len(parts))
	}
	for i, part := range parts {
		if len(part) != 2 {
			return p, fmt.Errorf("invalid mac prefix %q: segment %q is not two hex digits", s, part)
		}
		b, err := strconv.ParseUint(part, 16, 8)
		if err != nil {
			return p, fmt.Errorf("invalid mac prefix %q: segment %q is not two hex digits", s, part)
		}
		p[i] = byte(b)
	}
	return p, nil
}

// String renders the vendor prefix lower-case
func (p Prefix) String() string {
	return fmt.Sprintf("%02x:%02x:%02x", p[0], p[1], p[2])
}

// Format renders the full address for counter value n under the prefix
func (p Prefix) Format(n uint32) string {
	return fmt.Sprintf("%02x:%02x:%02x:%02x:%02x:%02x",
		p[0], p[1], p[2], byte(n>>16), byte(n>>8), byte(n))
}

// Next returns the address for the current counter value together with the
// advanced counter. The counter is monotonic and wrap is disallowed: once the
// 24-bit space is consumed allocation fails permanently, and addresses retired
// by node deletion are never handed out again.
func (p Prefix) Next(counter uint64) (string, uint64, error) {
	if counter >= SpaceSize {
		return "", counter, fmt.Errorf("%w: prefix %s", types.ErrAddressSpaceExhausted, p)
	}
	return p.Format(uint32(counter)), counter + 1, nil
}
