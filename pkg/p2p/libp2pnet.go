package p2p

import (
	"context"
	"errors"
	"io"
	"sync"

	libp2p "github.com/libp2p/go-libp2p"
	pubsub "github.com/libp2p/go-libp2p-pubsub"
	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/network"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/libp2p/go-libp2p/core/protocol"
	ma "github.com/multiformats/go-multiaddr"
	"go.uber.org/zap"

	"github.com/uhyunpark/autoredeem/pkg/keeper"
)

const (
	DefaultTopic   = "autoredeem-batches"
	protocolLatest = protocol.ID("/autoredeem/latest/1.0.0")
)

var ErrNoPeers = errors.New("no peers connected")

// Libp2pNet gossips batch envelopes to executor nodes. Late joiners can
// fetch the newest envelope over a direct stream.
type Libp2pNet struct {
	h   host.Host
	ps  *pubsub.PubSub
	log *zap.SugaredLogger

	topic *pubsub.Topic
	sub   *pubsub.Subscription

	muLatest sync.RWMutex
	latest   []byte // encoded newest envelope, seen or published

	muH      sync.RWMutex
	handlers []func(keeper.Envelope)
}

type Libp2pConfig struct {
	ListenAddr string
	Bootstrap  []string
	Topic      string
	Logger     *zap.SugaredLogger
}

func NewLibp2pNet(ctx context.Context, cfg Libp2pConfig) (*Libp2pNet, error) {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop().Sugar()
	}
	if cfg.Topic == "" {
		cfg.Topic = DefaultTopic
	}

	var opts []libp2p.Option
	if cfg.ListenAddr != "" {
		maddr, err := ma.NewMultiaddr(cfg.ListenAddr)
		if err != nil {
			return nil, err
		}
		opts = append(opts, libp2p.ListenAddrs(maddr))
	}
	h, err := libp2p.New(opts...)
	if err != nil {
		return nil, err
	}
	ps, err := pubsub.NewGossipSub(ctx, h)
	if err != nil {
		h.Close()
		return nil, err
	}

	net := &Libp2pNet{h: h, ps: ps, log: cfg.Logger}

	for _, bs := range cfg.Bootstrap {
		if err := connectMultiaddr(ctx, h, bs); err != nil {
			cfg.Logger.Warnw("bootstrap_connect_failed", "addr", bs, "err", err)
		}
	}

	if net.topic, err = ps.Join(cfg.Topic); err != nil {
		h.Close()
		return nil, err
	}
	if net.sub, err = net.topic.Subscribe(); err != nil {
		h.Close()
		return nil, err
	}

	h.SetStreamHandler(protocolLatest, net.handleLatestStream)
	go net.handleBatches(ctx)

	cfg.Logger.Infow("libp2p_ready", "peer", h.ID().String(), "listen", cfg.ListenAddr, "topic", cfg.Topic)
	return net, nil
}

func connectMultiaddr(ctx context.Context, h host.Host, addr string) error {
	m, err := ma.NewMultiaddr(addr)
	if err != nil {
		return err
	}
	info, err := peer.AddrInfoFromP2pAddr(m)
	if err != nil {
		return err
	}
	return h.Connect(ctx, *info)
}

func (n *Libp2pNet) Host() host.Host { return n.h }

// OnEnvelope registers a handler for envelopes gossiped by other nodes
func (n *Libp2pNet) OnEnvelope(fn func(keeper.Envelope)) {
	n.muH.Lock()
	n.handlers = append(n.handlers, fn)
	n.muH.Unlock()
}

// Publish implements keeper.Publisher
func (n *Libp2pNet) Publish(ctx context.Context, env keeper.Envelope) error {
	data, err := encodeEnvelope(env)
	if err != nil {
		return err
	}
	n.setLatest(data)
	return n.topic.Publish(ctx, data)
}

func (n *Libp2pNet) Close() error {
	n.sub.Cancel()
	if err := n.topic.Close(); err != nil {
		n.log.Warnw("topic_close_failed", "err", err)
	}
	return n.h.Close()
}

// FetchLatest asks the first connected peer for its newest envelope
func (n *Libp2pNet) FetchLatest(ctx context.Context) (keeper.Envelope, error) {
	peers := n.h.Network().Peers()
	if len(peers) == 0 {
		return keeper.Envelope{}, ErrNoPeers
	}
	stream, err := n.h.NewStream(ctx, peers[0], protocolLatest)
	if err != nil {
		return keeper.Envelope{}, err
	}
	defer stream.Close()

	data, err := io.ReadAll(stream)
	if err != nil {
		return keeper.Envelope{}, err
	}
	return decodeEnvelope(data)
}

func (n *Libp2pNet) setLatest(data []byte) {
	n.muLatest.Lock()
	n.latest = data
	n.muLatest.Unlock()
}

// inbound

func (n *Libp2pNet) handleBatches(ctx context.Context) {
	for {
		msg, err := n.sub.Next(ctx)
		if err != nil {
			return
		}
		if msg.ReceivedFrom == n.h.ID() {
			continue
		}
		env, err := decodeEnvelope(msg.Data)
		if err != nil {
			n.log.Debugw("bad_envelope", "from", msg.ReceivedFrom.String(), "err", err)
			continue
		}
		n.setLatest(msg.Data)

		n.muH.RLock()
		handlers := append([]func(keeper.Envelope){}, n.handlers...)
		n.muH.RUnlock()
		for _, fn := range handlers {
			fn(env)
		}
	}
}

// handleLatestStream writes the newest envelope and closes the stream
func (n *Libp2pNet) handleLatestStream(s network.Stream) {
	defer s.Close()

	n.muLatest.RLock()
	data := n.latest
	n.muLatest.RUnlock()
	if len(data) == 0 {
		return
	}
	if _, err := s.Write(data); err != nil {
		n.log.Debugw("latest_stream_write_failed", "peer", s.Conn().RemotePeer().String(), "err", err)
	}
}

var _ keeper.Publisher = (*Libp2pNet)(nil)
