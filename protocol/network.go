package protocol

import (
	"fmt"
	"strings"
)

// NetworkID is the one-byte network marker carried in the envelope.
// On the wire 0 is mainnet and every non-zero byte means testnet.
type NetworkID uint8

const (
	Mainnet NetworkID = 0
	Testnet NetworkID = 1
)

const (
	MainnetAddressPrefix = "kaspa:"
	TestnetAddressPrefix = "kaspatest:"
)

// NetworkIDFromByte collapses a wire byte onto the two known networks.
func NetworkIDFromByte(b byte) NetworkID {
	if b == 0 {
		return Mainnet
	}
	return Testnet
}

func (n NetworkID) Byte() byte {
	if n == Mainnet {
		return 0
	}
	return 1
}

func (n NetworkID) String() string {
	if n == Mainnet {
		return "mainnet"
	}
	return "testnet-10"
}

// AddressPrefix is the bech32 human-readable prefix, colon included.
func (n NetworkID) AddressPrefix() string {
	if n == Mainnet {
		return MainnetAddressPrefix
	}
	return TestnetAddressPrefix
}

// ParseNetwork accepts "mainnet", "testnet" and "testnet-<suffix>" in any case.
func ParseNetwork(s string) (NetworkID, error) {
	v := strings.ToLower(strings.TrimSpace(s))
	switch {
	case v == "mainnet":
		return Mainnet, nil
	case v == "testnet", strings.HasPrefix(v, "testnet-"):
		return Testnet, nil
	default:
		return Mainnet, fmt.Errorf("unknown network %q", s)
	}
}

// NetworkFromAddress infers the network from a Kaspa address prefix.
func NetworkFromAddress(addr string) (NetworkID, error) {
	a := strings.ToLower(strings.TrimSpace(addr))
	switch {
	case strings.HasPrefix(a, TestnetAddressPrefix):
		return Testnet, nil
	case strings.HasPrefix(a, MainnetAddressPrefix):
		return Mainnet, nil
	default:
		return Mainnet, kerr(KISR_ERR_NETWORK_MISMATCH, fmt.Sprintf("unrecognized address prefix: %q", addr))
	}
}

// CheckAddressNetwork fails with KISR_ERR_NETWORK_MISMATCH unless addr belongs to want.
func CheckAddressNetwork(addr string, want NetworkID) error {
	got, err := NetworkFromAddress(addr)
	if err != nil {
		return err
	}
	if got != want {
		return kerr(KISR_ERR_NETWORK_MISMATCH, fmt.Sprintf("address %s is on %s, expected %s", addr, got, want))
	}
	return nil
}
