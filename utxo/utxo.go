package utxo

import (
	"context"

	"kisr.dev/kisr/protocol"
)

// UTXO is a spendable output as reported by the node.
type UTXO struct {
	Outpoint        protocol.Outpoint
	Amount          uint64
	ScriptVersion   uint16
	ScriptPublicKey []byte
	BlockDaaScore   uint64
	IsCoinbase      bool
}

// Output is a transaction output used for fee estimation.
type Output struct {
	Amount          uint64
	ScriptVersion   uint16
	ScriptPublicKey []byte
}

// FeeRequest describes a candidate transaction shape.
type FeeRequest struct {
	Inputs     []UTXO
	Outputs    []Output
	PayloadLen int
	// FeeRate is in sompi per kilogram of mass.
	FeeRate uint64
}

// FeeEstimator returns the minimum fee, in sompi, for a transaction shape.
type FeeEstimator interface {
	EstimateFee(ctx context.Context, req FeeRequest) (uint64, error)
}

type FeeEstimatorFunc func(ctx context.Context, req FeeRequest) (uint64, error)

func (f FeeEstimatorFunc) EstimateFee(ctx context.Context, req FeeRequest) (uint64, error) {
	return f(ctx, req)
}

// Sum adds amounts, saturating at the uint64 maximum.
func Sum(us []UTXO) uint64 {
	var total uint64
	for _, u := range us {
		total = addSat(total, u.Amount)
	}
	return total
}

func addSat(a, b uint64) uint64 {
	if s := a + b; s >= a {
		return s
	}
	return ^uint64(0)
}
