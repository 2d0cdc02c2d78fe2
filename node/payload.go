package node

import (
	ssz "github.com/ferranbt/fastssz"

	"github.com/solsticelabs/solstice/pools"
)

// encodePayload frames the pooled lists into the opaque block payload:
// three sections (transactions, opens, votes), each a u32 item count
// followed by u32-length-delimited items.
func encodePayload(lists pools.Lists) ([]byte, error) {
	var buf []byte

	appendSection := func(items [][]byte) {
		buf = ssz.MarshalUint32(buf, uint32(len(items)))
		for _, item := range items {
			buf = ssz.MarshalUint32(buf, uint32(len(item)))
			buf = append(buf, item...)
		}
	}

	appendSection(lists.Transactions)
	appendSection(lists.Opens)

	buf = ssz.MarshalUint32(buf, uint32(len(lists.Votes)))
	for _, v := range lists.Votes {
		data, err := v.MarshalSSZ()
		if err != nil {
			return nil, err
		}
		buf = ssz.MarshalUint32(buf, uint32(len(data)))
		buf = append(buf, data...)
	}
	return buf, nil
}
