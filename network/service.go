package network

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	pubsub "github.com/libp2p/go-libp2p-pubsub"
	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/peer"

	"github.com/solsticelabs/solstice/types"
)

// MessageHandlers receives decoded gossip messages. Handlers run on the
// subscription goroutines; implementations hand off to the core over
// bounded channels.
type MessageHandlers struct {
	OnBlock func(ctx context.Context, b *types.Block, from peer.ID) error
	OnVote  func(ctx context.Context, v *types.Vote, from peer.ID) error
}

// Service joins the block and vote topics and pumps messages between the
// wire and the consensus core.
type Service struct {
	host     host.Host
	pubsub   *pubsub.PubSub
	handlers *MessageHandlers
	logger   *slog.Logger

	blockTopic *pubsub.Topic
	blockSub   *pubsub.Subscription
	voteTopic  *pubsub.Topic
	voteSub    *pubsub.Subscription

	failedBootnodes []peer.AddrInfo

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// ServiceConfig holds configuration for the network service.
type ServiceConfig struct {
	Host         host.Host
	Handlers     *MessageHandlers
	Bootnodes    []peer.AddrInfo
	NetworkName  string
	SlotDuration time.Duration
	Logger       *slog.Logger
}

// NewService creates the network service and joins the gossip topics.
func NewService(ctx context.Context, cfg ServiceConfig) (*Service, error) {
	ctx, cancel := context.WithCancel(ctx)

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	ps, err := NewGossipSub(ctx, cfg.Host, cfg.SlotDuration)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("create gossipsub: %w", err)
	}

	blockTopic, err := ps.Join(blockTopicName(cfg.NetworkName))
	if err != nil {
		cancel()
		return nil, fmt.Errorf("join block topic: %w", err)
	}
	voteTopic, err := ps.Join(voteTopicName(cfg.NetworkName))
	if err != nil {
		cancel()
		return nil, fmt.Errorf("join vote topic: %w", err)
	}

	blockSub, err := blockTopic.Subscribe()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("subscribe block topic: %w", err)
	}
	voteSub, err := voteTopic.Subscribe()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("subscribe vote topic: %w", err)
	}

	svc := &Service{
		host:       cfg.Host,
		pubsub:     ps,
		handlers:   cfg.Handlers,
		logger:     logger,
		blockTopic: blockTopic,
		blockSub:   blockSub,
		voteTopic:  voteTopic,
		voteSub:    voteSub,
		ctx:        ctx,
		cancel:     cancel,
	}

	for _, pi := range cfg.Bootnodes {
		if err := cfg.Host.Connect(ctx, pi); err != nil {
			logger.Warn("failed to connect to bootnode", "peer", pi.ID, "error", err)
			svc.failedBootnodes = append(svc.failedBootnodes, pi)
		} else {
			logger.Info("connected to bootnode", "peer", pi.ID)
		}
	}

	return svc, nil
}

// Start begins pumping gossip messages.
func (s *Service) Start() {
	s.wg.Add(2)
	go s.processBlocks()
	go s.processVotes()

	if len(s.failedBootnodes) > 0 {
		s.wg.Add(1)
		go s.retryBootnodes()
	}

	s.logger.Info("network service started",
		"peer_id", s.host.ID(),
		"addrs", s.host.Addrs(),
	)
}

// Stop shuts down the service.
func (s *Service) Stop() {
	s.cancel()
	s.blockSub.Cancel()
	s.voteSub.Cancel()
	s.wg.Wait()
	s.host.Close()
	s.logger.Info("network service stopped")
}

// PublishBlock publishes a block.
func (s *Service) PublishBlock(ctx context.Context, b *types.Block) error {
	data, err := b.MarshalSSZ()
	if err != nil {
		return fmt.Errorf("marshal block: %w", err)
	}
	return s.blockTopic.Publish(ctx, CompressMessage(data))
}

// PublishVote publishes a vote.
func (s *Service) PublishVote(ctx context.Context, v *types.Vote) error {
	data, err := v.MarshalSSZ()
	if err != nil {
		return fmt.Errorf("marshal vote: %w", err)
	}
	return s.voteTopic.Publish(ctx, CompressMessage(data))
}

// PeerCount returns the number of connected peers.
func (s *Service) PeerCount() int {
	return len(s.host.Network().Peers())
}

func (s *Service) processBlocks() {
	defer s.wg.Done()
	for {
		msg, err := s.blockSub.Next(s.ctx)
		if err != nil {
			return
		}
		if msg.ReceivedFrom == s.host.ID() {
			continue
		}
		data, err := DecompressMessage(msg.Data)
		if err != nil {
			s.logger.Debug("bad block compression", "from", msg.ReceivedFrom, "error", err)
			continue
		}
		block := new(types.Block)
		if err := block.UnmarshalSSZ(data); err != nil {
			s.logger.Debug("bad block encoding", "from", msg.ReceivedFrom, "error", err)
			continue
		}
		if s.handlers != nil && s.handlers.OnBlock != nil {
			if err := s.handlers.OnBlock(s.ctx, block, msg.ReceivedFrom); err != nil {
				s.logger.Debug("block handler", "slot", block.Slot, "error", err)
			}
		}
	}
}

func (s *Service) processVotes() {
	defer s.wg.Done()
	for {
		msg, err := s.voteSub.Next(s.ctx)
		if err != nil {
			return
		}
		if msg.ReceivedFrom == s.host.ID() {
			continue
		}
		data, err := DecompressMessage(msg.Data)
		if err != nil {
			s.logger.Debug("bad vote compression", "from", msg.ReceivedFrom, "error", err)
			continue
		}
		vote := new(types.Vote)
		if err := vote.UnmarshalSSZ(data); err != nil {
			s.logger.Debug("bad vote encoding", "from", msg.ReceivedFrom, "error", err)
			continue
		}
		if s.handlers != nil && s.handlers.OnVote != nil {
			if err := s.handlers.OnVote(s.ctx, vote, msg.ReceivedFrom); err != nil {
				s.logger.Debug("vote handler", "slot", vote.Slot(), "error", err)
			}
		}
	}
}

const bootnodeRetryInterval = 30 * time.Second

// retryBootnodes periodically retries connecting to failed bootnodes.
func (s *Service) retryBootnodes() {
	defer s.wg.Done()

	ticker := time.NewTicker(bootnodeRetryInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			var remaining []peer.AddrInfo
			for _, pi := range s.failedBootnodes {
				if err := s.host.Connect(s.ctx, pi); err != nil {
					s.logger.Debug("bootnode reconnect failed", "peer", pi.ID, "error", err)
					remaining = append(remaining, pi)
					continue
				}
				s.logger.Info("connected to bootnode", "peer", pi.ID)
			}
			s.failedBootnodes = remaining
			if len(remaining) == 0 {
				return
			}
		}
	}
}
