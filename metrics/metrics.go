// Package metrics exposes prometheus collectors for the consensus core.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	BlocksProcessed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "solstice_blocks_processed_total",
		Help: "Blocks installed into the block tree.",
	})
	BlocksRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "solstice_blocks_rejected_total",
		Help: "Blocks rejected at insertion, by reason.",
	}, []string{"reason"})
	VotesProcessed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "solstice_votes_processed_total",
		Help: "Votes accepted into the vote index.",
	})
	VotesRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "solstice_votes_rejected_total",
		Help: "Votes rejected at insertion, by reason.",
	}, []string{"reason"})
	JustifiedSlot = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "solstice_justified_slot",
		Help: "Slot of the highest justified pair.",
	})
	FinalizedSlot = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "solstice_finalized_slot",
		Help: "Slot of the highest finalized pair.",
	})
	LeaderSlots = promauto.NewCounter(prometheus.CounterOpts{
		Name: "solstice_leader_slots_total",
		Help: "Slots led by the local representative.",
	})
	SlashEvents = promauto.NewCounter(prometheus.CounterOpts{
		Name: "solstice_slash_events_total",
		Help: "Slashing evidence events emitted.",
	})
	HeldMessages = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "solstice_held_messages",
		Help: "Messages buffered in the holding area.",
	})
)
