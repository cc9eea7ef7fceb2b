package orders

import (
	"fmt"
	"math/rand/v2"
	"strings"
	"time"
)

const (
	codeTimeLayout   = "20060102150405"
	maxCodeAttempts  = 3
	defaultCodeStart = "ORD"
)

// GenerateCode builds a human-readable order code: prefix, UTC timestamp and
// four random digits.
func GenerateCode(prefix string, now time.Time) string {
	prefix = strings.ToUpper(strings.TrimSpace(prefix))
	if prefix == "" {
		prefix = defaultCodeStart
	}
	return fmt.Sprintf("%s%s%04d", prefix, now.UTC().Format(codeTimeLayout), rand.IntN(10000))
}
