package invite

import (
	"context"
	"fmt"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"

	"kisr.dev/kisr/protocol"
	"kisr.dev/kisr/utxo"
)

type RedeemParams struct {
	Link string
	// Code overrides the code carried by the link, for links shared without one.
	Code      string
	ToAddress string
	// FromAddress is the holder of the invite output. It defaults to the
	// inviter address embedded in the link; with neither, polling is skipped.
	FromAddress string
	Fee         uint64
	// Timeout bounds the whole flow when > 0.
	Timeout time.Duration
}

type RedeemResult struct {
	TxID       chainhash.Hash
	AnchorTxID chainhash.Hash
	Input      utxo.UTXO
	Amount     uint64
	Fee        uint64
	Network    protocol.NetworkID
	Memo       string
	Timestamp  uint64
}

// RedemptionReceipt is what the store keeps about a completed redemption.
type RedemptionReceipt struct {
	AnchorTxID     chainhash.Hash
	RedemptionTxID chainhash.Hash
	Input          protocol.Outpoint
	Destination    string
	Amount         uint64
	Fee            uint64
	RedeemedAt     time.Time
}

// RedeemInvite runs Idle -> Parsed -> PayloadFetched -> Decrypted -> Located -> Broadcast.
func (s *Service) RedeemInvite(ctx context.Context, p RedeemParams) (*RedeemResult, error) {
	if p.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.Timeout)
		defer cancel()
	}

	link, err := protocol.ParseDeeplink(p.Link)
	if err != nil {
		return nil, err
	}
	anchor, err := protocol.ParseTxID(link.TxID)
	if err != nil {
		return nil, protocol.WrapError(protocol.KISR_ERR_INVALID_DEEPLINK, "txid", err)
	}
	rawCode := p.Code
	if rawCode == "" {
		rawCode = link.Code
	}
	if rawCode == "" {
		return nil, protocol.NewError(protocol.KISR_ERR_INVALID_CODE, "no invite code in link or request")
	}
	code, ok := protocol.NormalizeCode(rawCode)
	if !ok {
		return nil, protocol.NewError(protocol.KISR_ERR_INVALID_CODE, "malformed invite code")
	}
	s.emit("redeem", RedeemParsed)
	log := s.logger.With("anchor_txid", anchor.String())

	network, err := s.wallet.CurrentNetworkID(ctx)
	if err != nil {
		return nil, protocol.AdapterError("current network", err)
	}
	if err := protocol.CheckAddressNetwork(p.ToAddress, network); err != nil {
		return nil, err
	}

	envelope, err := s.node.FetchTransactionPayload(ctx, anchor, network)
	if err != nil {
		return nil, protocol.AdapterError("fetch anchor payload", err)
	}
	s.emit("redeem", RedeemPayloadFetched)

	payload, err := s.codec.Decrypt(code, envelope)
	if err != nil {
		return nil, err
	}
	s.emit("redeem", RedeemDecrypted)

	if payload.Network != network {
		return nil, protocol.NewError(protocol.KISR_ERR_NETWORK_MISMATCH,
			fmt.Sprintf("invite is for %s, wallet is on %s", payload.Network, network))
	}
	if len(payload.Presig) == 0 {
		return nil, protocol.NewError(protocol.KISR_ERR_PAYLOAD_INVALID, "envelope carries no presignature")
	}
	if payload.Sighash != protocol.SighashNoneAnyoneCanPay {
		return nil, protocol.NewError(protocol.KISR_ERR_PAYLOAD_INVALID,
			fmt.Sprintf("unsupported sighash %s", payload.Sighash))
	}
	fee := p.Fee
	if fee == 0 {
		fee = s.redeemFee
	}
	if payload.Amount <= fee {
		return nil, protocol.NewError(protocol.KISR_ERR_FEE_TOO_HIGH,
			fmt.Sprintf("invite amount %d does not cover fee %d", payload.Amount, fee))
	}

	holder := p.FromAddress
	if holder == "" {
		holder = link.InviterAddress
	}
	input := utxo.UTXO{Outpoint: payload.Outpoint, Amount: payload.Amount}
	if holder != "" {
		input, err = s.locate(ctx, holder, payload.Outpoint, payload.Amount)
		if err != nil {
			return nil, err
		}
	} else {
		log.Warn("no holder address, spending the outpoint recorded in the envelope", "outpoint", input.Outpoint.String())
	}
	if input.Amount <= fee {
		return nil, protocol.NewError(protocol.KISR_ERR_FEE_TOO_HIGH,
			fmt.Sprintf("located output %s holds %d, does not cover fee %d", input.Outpoint, input.Amount, fee))
	}
	s.emit("redeem", RedeemLocated)

	raw, err := s.wallet.AssembleRedemption(ctx, RedemptionRequest{
		Input:     input,
		Presig:    payload.Presig,
		Sighash:   payload.Sighash,
		ToAddress: p.ToAddress,
		Fee:       fee,
		Network:   network,
	})
	if err != nil {
		return nil, protocol.AdapterError("assemble redemption", err)
	}
	txid, err := s.wallet.BroadcastRedemption(ctx, raw)
	if err != nil {
		return nil, protocol.AdapterError("broadcast redemption", err)
	}
	s.emit("redeem", RedeemBroadcast)
	log.Info("invite redeemed", "txid", txid.String(), "amount", input.Amount, "fee", fee)

	if s.store != nil {
		rec := &RedemptionReceipt{
			AnchorTxID:     anchor,
			RedemptionTxID: txid,
			Input:          input.Outpoint,
			Destination:    p.ToAddress,
			Amount:         input.Amount,
			Fee:            fee,
			RedeemedAt:     s.now().UTC(),
		}
		if err := s.store.SaveRedemption(rec); err != nil {
			log.Warn("redemption receipt not saved", "err", err)
		}
	}

	return &RedeemResult{
		TxID:       txid,
		AnchorTxID: anchor,
		Input:      input,
		Amount:     input.Amount,
		Fee:        fee,
		Network:    network,
		Memo:       payload.Memo,
		Timestamp:  payload.Timestamp,
	}, nil
}
