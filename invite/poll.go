package invite

import (
	"context"
	"fmt"
	"time"

	"kisr.dev/kisr/protocol"
	"kisr.dev/kisr/utxo"
)

// locate polls the holder's UTXO set until the invite output shows up. This
// is the only retried step in either flow.
func (s *Service) locate(ctx context.Context, holder string, want protocol.Outpoint, amount uint64) (utxo.UTXO, error) {
	var lastErr error
	for attempt := 1; attempt <= s.poll.Attempts; attempt++ {
		entries, err := s.node.GetUtxosByAddress(ctx, holder)
		if err == nil {
			if u, ok := utxo.Locate(entries, want, amount); ok {
				if u.Outpoint != want {
					s.logger.Info("invite output matched by fallback", "want", want.String(), "got", u.Outpoint.String())
				}
				return u, nil
			}
		} else {
			lastErr = err
			s.logger.Debug("utxo lookup failed", "attempt", attempt, "err", err)
		}
		if attempt == s.poll.Attempts {
			break
		}

		t := time.NewTimer(s.poll.Interval)
		select {
		case <-ctx.Done():
			t.Stop()
			return utxo.UTXO{}, &protocol.Error{
				Code: protocol.KISR_ERR_UTXO_NOT_FOUND,
				Msg:  fmt.Sprintf("stopped after %d attempts", attempt),
				Err:  ctx.Err(),
			}
		case <-t.C:
		}
	}
	msg := fmt.Sprintf("%s not visible for %s after %d attempts", want, holder, s.poll.Attempts)
	return utxo.UTXO{}, &protocol.Error{Code: protocol.KISR_ERR_UTXO_NOT_FOUND, Msg: msg, Err: lastErr}
}
