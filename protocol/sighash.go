package protocol

import "fmt"

// SighashType is the signature-hash flag byte committed by the presignature.
type SighashType uint8

const (
	SighashAll          SighashType = 0x01
	SighashNone         SighashType = 0x02
	SighashSingle       SighashType = 0x04
	SighashAnyOneCanPay SighashType = 0x80

	// SighashNoneAnyoneCanPay commits to the single signed input only, so the
	// redeemer is free to choose outputs.
	SighashNoneAnyoneCanPay = SighashNone | SighashAnyOneCanPay
)

func (s SighashType) String() string {
	if s == SighashNoneAnyoneCanPay {
		return "NONE|ANYONECANPAY"
	}
	return fmt.Sprintf("0x%02x", uint8(s))
}
