package kit

import (
	"encoding/binary"
	"fmt"
	"regexp"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/hashgraph/hedera-sdk-go/v2"

	"hedera-agent-kit/pkg/mirror"
)

var hederaAddress = regexp.MustCompile(`^\d+\.\d+\.\d+$`)

// IsHederaAddress reports whether s looks like shard.realm.num.
func IsHederaAddress(s string) bool {
	return hederaAddress.MatchString(strings.TrimSpace(s))
}

// IsEVMAddress reports whether s is a 0x-prefixed 20 byte hex address.
func IsEVMAddress(s string) bool {
	s = strings.TrimSpace(s)
	return strings.HasPrefix(s, "0x") && common.IsHexAddress(s)
}

// ToEVMAddress returns the long-zero EVM address of a Hedera entity id.
func ToEVMAddress(id string) (common.Address, error) {
	accountID, err := hedera.AccountIDFromString(strings.TrimSpace(id))
	if err != nil {
		return common.Address{}, fmt.Errorf("invalid entity id %q: %w", id, err)
	}
	var raw [common.AddressLength]byte
	binary.BigEndian.PutUint32(raw[0:4], uint32(accountID.Shard))
	binary.BigEndian.PutUint64(raw[4:12], accountID.Realm)
	binary.BigEndian.PutUint64(raw[12:20], accountID.Account)
	return common.BytesToAddress(raw[:]), nil
}

// ToMirrorTransactionID reshapes an SDK transaction id into mirror form.
func ToMirrorTransactionID(id string) (string, error) {
	return mirror.NormaliseTransactionID(id)
}
