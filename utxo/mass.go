package utxo

import (
	"context"
	"fmt"
)

// Compute-mass weights used by Kaspa full nodes.
const (
	MassPerTxByte           uint64 = 1
	MassPerScriptPubKeyByte uint64 = 10
	MassPerSigOp            uint64 = 1000
)

const (
	// DefaultSigScriptLen is one 65-byte Schnorr signature push.
	DefaultSigScriptLen = 66
	// P2PKScriptLen is OP_DATA_32 <x-only pubkey> OP_CHECKSIG.
	P2PKScriptLen = 34
)

// MassEstimator is a local FeeEstimator following the node's compute-mass
// rules: minFee = ceil(mass * feeRate / 1000). Storage mass is not modelled.
type MassEstimator struct {
	SigScriptLen int
	SigOpsPerIn  uint64
}

func (m MassEstimator) EstimateFee(ctx context.Context, req FeeRequest) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if req.PayloadLen < 0 {
		return 0, fmt.Errorf("mass: negative payload length")
	}
	rate := req.FeeRate
	if rate == 0 {
		rate = DefaultFeeRate
	}
	mass := m.Mass(req)
	if mass != 0 && rate > ^uint64(0)/mass {
		return 0, fmt.Errorf("mass: fee overflow (mass=%d rate=%d)", mass, rate)
	}
	return (mass*rate + 999) / 1000, nil
}

// Mass returns the compute mass of the described transaction. With no outputs
// it assumes a single P2PK output.
func (m MassEstimator) Mass(req FeeRequest) uint64 {
	sigLen := m.SigScriptLen
	if sigLen <= 0 {
		sigLen = DefaultSigScriptLen
	}
	sigOps := m.SigOpsPerIn
	if sigOps == 0 {
		sigOps = 1
	}
	outs := req.Outputs
	if len(outs) == 0 {
		outs = []Output{{ScriptPublicKey: make([]byte, P2PKScriptLen)}}
	}

	// version u16 | input count u64 | inputs | output count u64 | outputs |
	// locktime u64 | subnetwork 20 | gas u64 | payload hash 32 | payload len u64 | payload
	size := uint64(2 + 8 + 8 + 8 + 20 + 8 + 32 + 8)
	size += uint64(req.PayloadLen) // #nosec G115 -- non-negative, checked by caller.
	// outpoint 36 | script len u64 | script | sequence u64
	perIn := uint64(36 + 8 + sigLen + 8) // #nosec G115 -- sigLen > 0.
	size += perIn * uint64(len(req.Inputs))

	var spkBytes uint64
	for _, o := range outs {
		// value u64 | script version u16 | script len u64 | script
		size += uint64(8 + 2 + 8 + len(o.ScriptPublicKey))
		spkBytes += uint64(2 + len(o.ScriptPublicKey))
	}

	return size*MassPerTxByte +
		spkBytes*MassPerScriptPubKeyByte +
		sigOps*uint64(len(req.Inputs))*MassPerSigOp
}
