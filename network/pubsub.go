package network

import (
	"context"
	"encoding/binary"
	"time"

	"github.com/golang/snappy"
	pubsub "github.com/libp2p/go-libp2p-pubsub"
	pb "github.com/libp2p/go-libp2p-pubsub/pb"
	"github.com/libp2p/go-libp2p/core/host"
	"lukechampine.com/blake3"
)

// Topic format: /solstice/<network>/<type>/ssz_snappy
func blockTopicName(network string) string {
	return "/solstice/" + network + "/block/ssz_snappy"
}

func voteTopicName(network string) string {
	return "/solstice/" + network + "/vote/ssz_snappy"
}

// Message domains for gossipsub message ID computation.
var (
	messageDomainInvalidSnappy = [4]byte{0x00, 0x00, 0x00, 0x00}
	messageDomainValidSnappy   = [4]byte{0x01, 0x00, 0x00, 0x00}
)

// seenTTLSlots bounds gossip deduplication history in slots.
const seenTTLSlots = 64

// NewGossipSub creates a gossipsub instance tuned for slot-paced traffic.
func NewGossipSub(ctx context.Context, h host.Host, slotDuration time.Duration) (*pubsub.PubSub, error) {
	gsParams := pubsub.DefaultGossipSubParams()
	gsParams.D = 8
	gsParams.Dlo = 6
	gsParams.Dhi = 12
	gsParams.Dlazy = 6
	gsParams.HeartbeatInterval = 700 * time.Millisecond
	gsParams.FanoutTTL = 60 * time.Second
	gsParams.HistoryLength = 6
	gsParams.HistoryGossip = 3

	opts := []pubsub.Option{
		pubsub.WithMessageIdFn(computePubsubMessageID),
		pubsub.WithGossipSubParams(gsParams),
		pubsub.WithSeenMessagesTTL(seenTTLSlots * slotDuration),
		pubsub.WithMessageSignaturePolicy(pubsub.StrictNoSign),
		pubsub.WithFloodPublish(false),
	}
	return pubsub.NewGossipSub(ctx, h, opts...)
}

// computePubsubMessageID computes the 20-byte message ID for gossipsub
// deduplication: BLAKE3(domain + len(topic) + topic + data)[:20].
func computePubsubMessageID(msg *pb.Message) string {
	var domain [4]byte
	var data []byte

	decoded, err := snappy.Decode(nil, msg.Data)
	if err == nil {
		domain = messageDomainValidSnappy
		data = decoded
	} else {
		domain = messageDomainInvalidSnappy
		data = msg.Data
	}

	topic := msg.GetTopic()
	topicLen := make([]byte, 8)
	binary.LittleEndian.PutUint64(topicLen, uint64(len(topic)))

	h := blake3.New(32, nil)
	h.Write(domain[:])
	h.Write(topicLen)
	h.Write([]byte(topic))
	h.Write(data)
	return string(h.Sum(nil)[:20])
}

// CompressMessage compresses data with snappy for gossip.
func CompressMessage(data []byte) []byte {
	return snappy.Encode(nil, data)
}

// DecompressMessage decompresses snappy-compressed gossip data.
func DecompressMessage(data []byte) ([]byte, error) {
	return snappy.Decode(nil, data)
}
