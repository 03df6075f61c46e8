package invite

import (
	"errors"
	"log/slog"
	"time"

	"kisr.dev/kisr/protocol"
)

const (
	// DefaultRedeemFee is the redemption fee, in sompi, when the caller gives none.
	DefaultRedeemFee uint64 = 2000
	// DefaultAnchorValue is the self-send value carrying the envelope payload.
	DefaultAnchorValue uint64 = 5 * protocol.SompiPerKaspa
)

// PollConfig bounds the wait for an invite output to become visible.
type PollConfig struct {
	Attempts int
	Interval time.Duration
}

func DefaultPollConfig() PollConfig {
	return PollConfig{Attempts: 10, Interval: time.Second}
}

type Config struct {
	Wallet WalletAdapter
	Node   NodeClient
	Codec  *protocol.EnvelopeCodec
	// Store is optional; when set every durable create step is checkpointed.
	Store  ProgressStore
	Logger *slog.Logger

	Poll        PollConfig
	RedeemFee   uint64
	AnchorValue uint64

	OnState func(StateEvent)
	Now     func() time.Time
}

// Service runs the create and redeem flows. It holds no per-invite state and
// is safe for concurrent use when its adapters are.
type Service struct {
	wallet WalletAdapter
	node   NodeClient
	codec  *protocol.EnvelopeCodec
	store  ProgressStore
	logger *slog.Logger

	poll        PollConfig
	redeemFee   uint64
	anchorValue uint64

	onState func(StateEvent)
	now     func() time.Time
}

func NewService(cfg Config) (*Service, error) {
	if cfg.Wallet == nil {
		return nil, errors.New("invite: wallet adapter is required")
	}
	if cfg.Node == nil {
		return nil, errors.New("invite: node client is required")
	}
	if cfg.Codec == nil {
		return nil, protocol.NewError(protocol.KISR_ERR_CRYPTO_UNAVAILABLE, "invite: envelope codec is required")
	}
	s := &Service{
		wallet:      cfg.Wallet,
		node:        cfg.Node,
		codec:       cfg.Codec,
		store:       cfg.Store,
		logger:      cfg.Logger,
		poll:        cfg.Poll,
		redeemFee:   cfg.RedeemFee,
		anchorValue: cfg.AnchorValue,
		onState:     cfg.OnState,
		now:         cfg.Now,
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	def := DefaultPollConfig()
	if s.poll.Attempts <= 0 {
		s.poll.Attempts = def.Attempts
	}
	if s.poll.Interval <= 0 {
		s.poll.Interval = def.Interval
	}
	if s.redeemFee == 0 {
		s.redeemFee = DefaultRedeemFee
	}
	if s.anchorValue == 0 {
		s.anchorValue = DefaultAnchorValue
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s, nil
}

func (s *Service) emit(flow string, state interface{ String() string }) {
	s.logger.Debug("invite state", "flow", flow, "state", state.String())
	if s.onState != nil {
		s.onState(StateEvent{Flow: flow, State: state.String()})
	}
}
