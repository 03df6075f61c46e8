package invite

// CreateState is the inviter-side lifecycle position.
type CreateState uint8

const (
	CreateIdle      CreateState = 0
	CreateFunded    CreateState = 1 // invite output exists on the ledger
	CreatePresigned CreateState = 2 // presignature over the invite output obtained
	CreateEnveloped CreateState = 3 // code generated and envelope sealed
	CreateAnchored  CreateState = 4 // envelope published as a transaction payload
	CreateDone      CreateState = 5
)

func (s CreateState) String() string {
	switch s {
	case CreateIdle:
		return "IDLE"
	case CreateFunded:
		return "FUNDED"
	case CreatePresigned:
		return "PRESIGNED"
	case CreateEnveloped:
		return "ENVELOPED"
	case CreateAnchored:
		return "ANCHORED"
	case CreateDone:
		return "DONE"
	default:
		return "UNKNOWN"
	}
}

// RedeemState is the redeemer-side lifecycle position.
type RedeemState uint8

const (
	RedeemIdle           RedeemState = 0
	RedeemParsed         RedeemState = 1
	RedeemPayloadFetched RedeemState = 2
	RedeemDecrypted      RedeemState = 3
	RedeemLocated        RedeemState = 4
	RedeemBroadcast      RedeemState = 5
)

func (s RedeemState) String() string {
	switch s {
	case RedeemIdle:
		return "IDLE"
	case RedeemParsed:
		return "PARSED"
	case RedeemPayloadFetched:
		return "PAYLOAD_FETCHED"
	case RedeemDecrypted:
		return "DECRYPTED"
	case RedeemLocated:
		return "LOCATED"
	case RedeemBroadcast:
		return "BROADCAST"
	default:
		return "UNKNOWN"
	}
}

// StateEvent is delivered to Config.OnState on every transition.
type StateEvent struct {
	Flow  string // "create" or "redeem"
	State string
}
