package jobs

import (
	"crypto/rand"
	"math/big"
	"strconv"
	"strings"
	"time"
)

const (
	// MinIDLength is the shortest identifier accepted by the polling endpoint.
	MinIDLength  = 10
	idSuffixLen  = 6
	base36Digits = "0123456789abcdefghijklmnopqrstuvwxyz"
)

// NewID returns the base-36 millisecond timestamp of now followed by six random base-36 characters.
func NewID(now time.Time) string {
	var b strings.Builder
	b.WriteString(strconv.FormatInt(now.UnixMilli(), 36))
	limit := big.NewInt(int64(len(base36Digits)))
	for i := 0; i < idSuffixLen; i++ {
		n, err := rand.Int(rand.Reader, limit)
		if err != nil {
			b.WriteByte(base36Digits[now.Nanosecond()%len(base36Digits)])
			continue
		}
		b.WriteByte(base36Digits[n.Int64()])
	}
	return b.String()
}

// CreatedAt decodes the timestamp prefix of an id produced by NewID.
func CreatedAt(id string) (time.Time, bool) {
	if len(id) <= idSuffixLen {
		return time.Time{}, false
	}
	ms, err := strconv.ParseInt(id[:len(id)-idSuffixLen], 36, 64)
	if err != nil || ms <= 0 {
		return time.Time{}, false
	}
	return time.UnixMilli(ms), true
}

// ValidID applies the polling endpoint's sanity check.
func ValidID(id string) bool {
	return len(id) >= MinIDLength
}
