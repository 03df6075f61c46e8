package utxo

import (
	"bytes"
	"context"
	"fmt"
	"slices"

	"kisr.dev/kisr/protocol"
)

// DefaultFeeRate is one sompi per gram of mass.
const DefaultFeeRate uint64 = 1000

type SelectRequest struct {
	Candidates []UTXO
	Target     uint64
	FeeRate    uint64
	// Outputs and PayloadLen describe the transaction being funded.
	Outputs    []Output
	PayloadLen int
	// Exclude lists outpoints that must never be spent.
	Exclude   []protocol.Outpoint
	Estimator FeeEstimator
}

type Selection struct {
	Inputs []UTXO
	Total  uint64
	Fee    uint64
}

// Change is what remains after target and fee.
func (s *Selection) Change(target uint64) uint64 {
	need := addSat(target, s.Fee)
	if s.Total <= need {
		return 0
	}
	return s.Total - need
}

// Select adds candidates smallest first and re-estimates the fee after every
// addition, stopping as soon as the running total covers target plus fee.
func Select(ctx context.Context, req SelectRequest) (*Selection, error) {
	if req.Estimator == nil {
		return nil, fmt.Errorf("utxo select: nil fee estimator")
	}
	rate := req.FeeRate
	if rate == 0 {
		rate = DefaultFeeRate
	}

	pool := make([]UTXO, 0, len(req.Candidates))
	for _, c := range req.Candidates {
		if slices.Contains(req.Exclude, c.Outpoint) {
			continue
		}
		pool = append(pool, c)
	}
	slices.SortStableFunc(pool, func(a, b UTXO) int {
		switch {
		case a.Amount < b.Amount:
			return -1
		case a.Amount > b.Amount:
			return 1
		}
		if c := bytes.Compare(a.Outpoint.TxID[:], b.Outpoint.TxID[:]); c != 0 {
			return c
		}
		switch {
		case a.Outpoint.Index < b.Outpoint.Index:
			return -1
		case a.Outpoint.Index > b.Outpoint.Index:
			return 1
		}
		return 0
	})

	sel := &Selection{}
	for _, c := range pool {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		sel.Inputs = append(sel.Inputs, c)
		sel.Total = addSat(sel.Total, c.Amount)
		fee, err := req.Estimator.EstimateFee(ctx, FeeRequest{
			Inputs:     sel.Inputs,
			Outputs:    req.Outputs,
			PayloadLen: req.PayloadLen,
			FeeRate:    rate,
		})
		if err != nil {
			return nil, protocol.AdapterError("estimate fee", err)
		}
		sel.Fee = fee
		if sel.Total >= addSat(req.Target, fee) {
			return sel, nil
		}
	}
	return nil, protocol.NewError(protocol.KISR_ERR_INSUFFICIENT_FUNDS,
		fmt.Sprintf("have %d sompi across %d candidates, need %d plus fee %d", sel.Total, len(pool), req.Target, sel.Fee))
}
