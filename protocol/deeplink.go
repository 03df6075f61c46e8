package protocol

import "strings"

const (
	DeeplinkScheme = "kaspa"
	deeplinkAction = "redeem"
)

// Deeplink is the parsed form of a kaspa:[<inviter>/]redeem?... URI.
// Code and InviterAddress are empty when absent.
type Deeplink struct {
	TxID           string
	Code           string
	InviterAddress string
}

// BuildDeeplink renders a redeem URI. Empty code or inviterAddress are omitted.
func BuildDeeplink(code, txid, inviterAddress string) string {
	var sb strings.Builder
	sb.WriteString(DeeplinkScheme)
	sb.WriteByte(':')
	if inviterAddress != "" {
		sb.WriteString(inviterAddress)
		sb.WriteByte('/')
	}
	sb.WriteString(deeplinkAction)
	sb.WriteByte('?')
	if code != "" {
		sb.WriteString("code=")
		sb.WriteString(code)
		sb.WriteByte('&')
	}
	sb.WriteString("txid=")
	sb.WriteString(txid)
	return sb.String()
}

// ParseDeeplink accepts any scheme casing and any query name casing. Values
// are returned verbatim.
func ParseDeeplink(uri string) (Deeplink, error) {
	var out Deeplink
	scheme, rest, ok := strings.Cut(strings.TrimSpace(uri), ":")
	if !ok || !strings.EqualFold(scheme, DeeplinkScheme) {
		return out, kerr(KISR_ERR_INVALID_DEEPLINK, "scheme must be kaspa:")
	}
	path, query, _ := strings.Cut(rest, "?")
	switch {
	case path == deeplinkAction:
	case strings.HasSuffix(path, "/"+deeplinkAction):
		out.InviterAddress = strings.TrimSuffix(path, "/"+deeplinkAction)
	default:
		return out, kerr(KISR_ERR_INVALID_DEEPLINK, "path must end with redeem")
	}
	for _, pair := range strings.Split(query, "&") {
		if pair == "" {
			continue
		}
		name, value, _ := strings.Cut(pair, "=")
		switch strings.ToLower(name) {
		case "code":
			out.Code = value
		case "txid":
			out.TxID = value
		}
	}
	if out.TxID == "" {
		return out, kerr(KISR_ERR_INVALID_DEEPLINK, "missing txid")
	}
	return out, nil
}
