package mirror

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

var (
	sdkTransactionID    = regexp.MustCompile(`^(\d+\.\d+\.\d+)@(\d+)\.(\d+)$`)
	mirrorTransactionID = regexp.MustCompile(`^\d+\.\d+\.\d+-\d+-\d+$`)
)

// NormaliseTransactionID reshapes an SDK transaction id
// (0.0.5@1700000000.000000001) into the form the mirror node routes on
// (0.0.5-1700000000-000000001). Ids already in mirror form are returned as is.
// The nanosecond part is left-padded to nine digits.
func NormaliseTransactionID(id string) (string, error) {
	id = strings.TrimSpace(id)
	if mirrorTransactionID.MatchString(id) {
		return id, nil
	}
	m := sdkTransactionID.FindStringSubmatch(id)
	if m == nil {
		return "", fmt.Errorf("invalid transaction id %q: expected shard.realm.num@seconds.nanos", id)
	}
	nanos := m[3]
	if len(nanos) > 9 {
		return "", fmt.Errorf("invalid transaction id %q: nanoseconds exceed nine digits", id)
	}
	return fmt.Sprintf("%s-%s-%s", m[1], m[2], strings.Repeat("0", 9-len(nanos))+nanos), nil
}

// Timestamp renders t as a mirror node timestamp ("seconds.nanos").
func Timestamp(t time.Time) string {
	return fmt.Sprintf("%d.%09d", t.Unix(), t.Nanosecond())
}
