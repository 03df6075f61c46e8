package invite

import (
	"context"
	"fmt"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/google/uuid"

	"kisr.dev/kisr/protocol"
)

// CreateProgress is the durable part of a create flow. It never contains the
// invite code, so a flow interrupted after enveloping restarts from Presigned
// with a fresh code.
type CreateProgress struct {
	ID         uuid.UUID
	State      CreateState
	Network    protocol.NetworkID
	Amount     uint64
	Memo       string
	Outpoint   protocol.Outpoint
	Presig     []byte
	AnchorTxID chainhash.Hash
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

type CreateParams struct {
	Amount uint64
	Memo   string
	// InviterAddress, when set, is embedded in the deeplink so the redeemer
	// knows whose UTXO set to watch.
	InviterAddress string
	InviterPubKey  []byte
	// Resume continues an earlier attempt instead of funding a new output.
	Resume *CreateProgress
}

type CreateResult struct {
	Code       string
	Deeplink   string
	AnchorTxID chainhash.Hash
	Outpoint   protocol.Outpoint
	Amount     uint64
	Envelope   []byte
	Progress   *CreateProgress
}

// CreateInvite runs Idle -> Funded -> Presigned -> Enveloped -> Anchored -> Done.
// On failure the returned progress (also checkpointed to the store) can be
// passed back through CreateParams.Resume to reuse the funded output.
func (s *Service) CreateInvite(ctx context.Context, p CreateParams) (*CreateResult, *CreateProgress, error) {
	network, err := s.wallet.CurrentNetworkID(ctx)
	if err != nil {
		return nil, nil, protocol.AdapterError("current network", err)
	}
	if p.InviterAddress != "" {
		if err := protocol.CheckAddressNetwork(p.InviterAddress, network); err != nil {
			return nil, nil, err
		}
	}

	prog, err := s.startProgress(p, network)
	if err != nil {
		return nil, nil, err
	}
	log := s.logger.With("invite_id", prog.ID.String(), "network", network.String())

	if prog.State < CreateFunded {
		funded, err := s.wallet.CreateSelfUTXO(ctx, prog.Amount)
		if err != nil {
			return nil, prog, protocol.AdapterError("create self utxo", err)
		}
		prog.Outpoint = funded.Outpoint
		if funded.Amount != 0 {
			prog.Amount = funded.Amount
		}
		if err := s.advance(prog, CreateFunded); err != nil {
			return nil, prog, err
		}
		log.Info("invite output funded", "outpoint", prog.Outpoint.String(), "amount", prog.Amount)
	}

	if prog.State < CreatePresigned {
		presig, err := s.wallet.PreSignInput(ctx, FundedOutput{Outpoint: prog.Outpoint, Amount: prog.Amount}, protocol.SighashNoneAnyoneCanPay)
		if err != nil {
			return nil, prog, protocol.AdapterError("presign input", err)
		}
		if len(presig) == 0 {
			return nil, prog, protocol.AdapterError("presign input", fmt.Errorf("wallet returned an empty presignature"))
		}
		prog.Presig = presig
		if err := s.advance(prog, CreatePresigned); err != nil {
			return nil, prog, err
		}
		log.Info("invite output presigned", "outpoint", prog.Outpoint.String())
	}

	code, err := protocol.GenerateCode(s.codec.Crypto())
	if err != nil {
		return nil, prog, err
	}
	envelope, err := s.codec.Build(code, protocol.BuildParams{
		Outpoint:      prog.Outpoint,
		Amount:        prog.Amount,
		Presig:        prog.Presig,
		Network:       network,
		Memo:          prog.Memo,
		InviterPubKey: p.InviterPubKey,
	})
	if err != nil {
		return nil, prog, err
	}
	// Enveloped is not checkpointed: the code only lives in memory.
	prog.State = CreateEnveloped
	s.emit("create", CreateEnveloped)

	anchor, err := s.wallet.PublishAnchorTransaction(ctx, AnchorRequest{
		Payload: envelope,
		Value:   s.anchorValue,
		Exclude: []protocol.Outpoint{prog.Outpoint},
	})
	if err != nil {
		prog.State = CreatePresigned
		return nil, prog, protocol.AdapterError("publish anchor", err)
	}
	prog.AnchorTxID = anchor
	// The anchor is on the ledger, so store failures from here on are only
	// logged. Anchored must be recorded so a resume never anchors twice.
	if err := s.advance(prog, CreateAnchored); err != nil {
		log.Warn("invite record not saved", "state", CreateAnchored.String(), "err", err)
	}
	log.Info("invite envelope anchored", "anchor_txid", anchor.String(), "envelope_bytes", len(envelope))

	link := protocol.BuildDeeplink(code, anchor.String(), p.InviterAddress)
	if err := s.advance(prog, CreateDone); err != nil {
		log.Warn("invite record not saved", "state", CreateDone.String(), "err", err)
	}

	return &CreateResult{
		Code:       code,
		Deeplink:   link,
		AnchorTxID: anchor,
		Outpoint:   prog.Outpoint,
		Amount:     prog.Amount,
		Envelope:   envelope,
		Progress:   prog,
	}, prog, nil
}

func (s *Service) startProgress(p CreateParams, network protocol.NetworkID) (*CreateProgress, error) {
	now := s.now().UTC()
	if r := p.Resume; r != nil {
		if r.State >= CreateAnchored {
			return nil, fmt.Errorf("invite %s already anchored in %s", r.ID, r.AnchorTxID)
		}
		if r.Network != network {
			return nil, protocol.NewError(protocol.KISR_ERR_NETWORK_MISMATCH,
				fmt.Sprintf("resumed invite is on %s, wallet is on %s", r.Network, network))
		}
		prog := *r
		if prog.State > CreatePresigned {
			prog.State = CreatePresigned
		}
		prog.Presig = append([]byte(nil), r.Presig...)
		prog.UpdatedAt = now
		s.logger.Info("resuming invite", "invite_id", prog.ID.String(), "state", prog.State.String())
		return &prog, nil
	}
	if p.Amount == 0 {
		return nil, protocol.NewError(protocol.KISR_ERR_PAYLOAD_INVALID, "invite amount must be > 0")
	}
	if p.Memo != "" {
		if err := protocol.ValidateMemo(p.Memo); err != nil {
			return nil, err
		}
	}
	if len(p.InviterPubKey) > 0 {
		if err := protocol.ValidateInviterPubKey(p.InviterPubKey); err != nil {
			return nil, err
		}
	}
	return &CreateProgress{
		ID:        uuid.New(),
		State:     CreateIdle,
		Network:   network,
		Amount:    p.Amount,
		Memo:      p.Memo,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

func (s *Service) advance(prog *CreateProgress, next CreateState) error {
	prog.State = next
	prog.UpdatedAt = s.now().UTC()
	s.emit("create", next)
	if s.store == nil {
		return nil
	}
	if err := s.store.SaveInvite(prog); err != nil {
		return fmt.Errorf("checkpoint invite %s at %s: %w", prog.ID, next, err)
	}
	return nil
}
