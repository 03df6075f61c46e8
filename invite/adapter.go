package invite

import (
	"context"

	"github.com/btcsuite/btcd/chaincfg/chainhash"

	"kisr.dev/kisr/protocol"
	"kisr.dev/kisr/utxo"
)

// FundedOutput is the invite output created by the inviter's wallet.
type FundedOutput struct {
	Outpoint protocol.Outpoint
	Amount   uint64
}

// AnchorRequest asks the wallet to publish payload in a self-send that spends
// none of the Exclude outpoints.
type AnchorRequest struct {
	Payload []byte
	Value   uint64
	Exclude []protocol.Outpoint
}

// RedemptionRequest carries everything needed to spend a presigned input.
type RedemptionRequest struct {
	Input     utxo.UTXO
	Presig    []byte
	Sighash   protocol.SighashType
	ToAddress string
	Fee       uint64
	Network   protocol.NetworkID
}

// WalletAdapter is the signing and broadcasting capability supplied by the
// host wallet. Transaction construction lives entirely behind it.
type WalletAdapter interface {
	CurrentNetworkID(ctx context.Context) (protocol.NetworkID, error)
	CreateSelfUTXO(ctx context.Context, amount uint64) (FundedOutput, error)
	PreSignInput(ctx context.Context, out FundedOutput, sighash protocol.SighashType) ([]byte, error)
	PublishAnchorTransaction(ctx context.Context, req AnchorRequest) (chainhash.Hash, error)
	AssembleRedemption(ctx context.Context, req RedemptionRequest) ([]byte, error)
	BroadcastRedemption(ctx context.Context, rawTx []byte) (chainhash.Hash, error)
}

// NodeClient is the read and submit surface of a ledger node plus explorer.
type NodeClient interface {
	FetchTransactionPayload(ctx context.Context, txid chainhash.Hash, network protocol.NetworkID) ([]byte, error)
	GetUtxosByAddress(ctx context.Context, address string) ([]utxo.UTXO, error)
	SubmitTransaction(ctx context.Context, rawTx []byte) (chainhash.Hash, error)
	EstimateFee(ctx context.Context, req utxo.FeeRequest) (uint64, error)
}

// ProgressStore persists create progress and redemption receipts. The invite
// code is never handed to it.
type ProgressStore interface {
	SaveInvite(p *CreateProgress) error
	SaveRedemption(r *RedemptionReceipt) error
}
