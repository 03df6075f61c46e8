package main

import (
	"encoding/hex"
	"strings"

	"github.com/urfave/cli/v2"

	"kisr.dev/kisr/crypto"
	"kisr.dev/kisr/protocol"
)

type payloadOutput struct {
	TxID          string `json:"txid"`
	Index         uint32 `json:"index"`
	AmountSompi   uint64 `json:"amount_sompi"`
	AmountKAS     string `json:"amount_kas"`
	Presig        string `json:"presig"`
	Sighash       string `json:"sighash"`
	InviterPubKey string `json:"inviter_pubkey,omitempty"`
	Network       string `json:"network"`
	Timestamp     uint64 `json:"timestamp"`
	Memo          string `json:"memo,omitempty"`
}

func toPayloadOutput(p *protocol.DecryptedPayload) payloadOutput {
	return payloadOutput{
		TxID:          p.Outpoint.TxID.String(),
		Index:         p.Outpoint.Index,
		AmountSompi:   p.Amount,
		AmountKAS:     protocol.FormatSompi(p.Amount),
		Presig:        hex.EncodeToString(p.Presig),
		Sighash:       p.Sighash.String(),
		InviterPubKey: hex.EncodeToString(p.InviterPubKey),
		Network:       p.Network.String(),
		Timestamp:     p.Timestamp,
		Memo:          p.Memo,
	}
}

func decodeHexArg(s, what string) ([]byte, error) {
	b, err := hex.DecodeString(strings.TrimPrefix(strings.TrimSpace(s), "0x"))
	if err != nil {
		return nil, usagef("bad %s hex: %v", what, err)
	}
	return b, nil
}

// amountFromFlags reads --amount (KAS) or --sompi.
func amountFromFlags(c *cli.Context) (uint64, error) {
	switch {
	case c.IsSet("sompi") && c.IsSet("amount"):
		return 0, usagef("--amount and --sompi are mutually exclusive")
	case c.IsSet("sompi"):
		return c.Uint64("sompi"), nil
	case c.IsSet("amount"):
		v, err := protocol.ParseKaspa(c.String("amount"))
		if err != nil {
			return 0, usagef("bad --amount: %v", err)
		}
		return v, nil
	}
	return 0, usagef("one of --amount or --sompi is required")
}

var amountFlags = []cli.Flag{
	&cli.StringFlag{Name: "amount", Usage: "amount in KAS (up to 8 decimals)"},
	&cli.Uint64Flag{Name: "sompi", Usage: "amount in sompi"},
}

var commandEnvelope = &cli.Command{
	Name:  "envelope",
	Usage: "seal, open and inspect invite envelopes",
	Subcommands: []*cli.Command{
		{
			Name:  "build",
			Usage: "seal an envelope offline; a code is generated when none is given",
			Flags: append([]cli.Flag{
				&cli.StringFlag{Name: "code", Usage: "invite code"},
				&cli.StringFlag{Name: "txid", Usage: "invite output transaction id", Required: true},
				&cli.Uint64Flag{Name: "index", Usage: "invite output index"},
				&cli.StringFlag{Name: "presig", Usage: "presignature hex", Required: true},
				&cli.StringFlag{Name: "pubkey", Usage: "inviter public key hex"},
				&cli.StringFlag{Name: "memo", Usage: "memo (at most 40 UTF-16 units)"},
			}, amountFlags...),
			Action: envelopeBuild,
		},
		{
			Name:  "decrypt",
			Usage: "open an envelope with a code",
			Flags: []cli.Flag{
				&cli.StringFlag{Name: "code", Usage: "invite code", Required: true},
				&cli.StringFlag{Name: "envelope", Usage: "envelope hex", Required: true},
			},
			Action: func(c *cli.Context) error {
				env, err := decodeHexArg(c.String("envelope"), "envelope")
				if err != nil {
					return err
				}
				codec, err := protocol.NewEnvelopeCodec(crypto.StdCryptoProvider{})
				if err != nil {
					return err
				}
				p, err := codec.Decrypt(c.String("code"), env)
				if err != nil {
					return err
				}
				return printJSON(c.App.Writer, toPayloadOutput(p))
			},
		},
		{
			Name:      "inspect",
			Usage:     "show envelope framing without decrypting",
			ArgsUsage: "<envelope-hex>",
			Action: func(c *cli.Context) error {
				if c.NArg() != 1 {
					return usagef("inspect takes exactly one envelope")
				}
				env, err := decodeHexArg(c.Args().First(), "envelope")
				if err != nil {
					return err
				}
				h, err := protocol.InspectEnvelope(env)
				if err != nil {
					return err
				}
				return printJSON(c.App.Writer, map[string]any{
					"version":        h.Version,
					"salt":           hex.EncodeToString(h.Salt[:]),
					"nonce":          hex.EncodeToString(h.Nonce[:]),
					"ciphertext_len": h.CiphertextLen,
				})
			},
		},
	},
}

func envelopeBuild(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	network, err := cfg.NetworkID()
	if err != nil {
		return usageError{err: err}
	}
	txid, err := protocol.ParseTxID(c.String("txid"))
	if err != nil {
		return usagef("bad --txid: %v", err)
	}
	if c.Uint64("index") > 0xffffffff {
		return usagef("--index out of range")
	}
	amount, err := amountFromFlags(c)
	if err != nil {
		return err
	}
	presig, err := decodeHexArg(c.String("presig"), "presig")
	if err != nil {
		return err
	}
	var pubkey []byte
	if c.IsSet("pubkey") {
		if pubkey, err = decodeHexArg(c.String("pubkey"), "pubkey"); err != nil {
			return err
		}
	}

	provider := crypto.StdCryptoProvider{}
	code := c.String("code")
	if code == "" {
		if code, err = protocol.GenerateCode(provider); err != nil {
			return err
		}
	}
	codec, err := protocol.NewEnvelopeCodec(provider)
	if err != nil {
		return err
	}
	env, err := codec.Build(code, protocol.BuildParams{
		Outpoint:      protocol.Outpoint{TxID: txid, Index: uint32(c.Uint64("index"))}, // #nosec G115 -- range checked above.
		Amount:        amount,
		Presig:        presig,
		Network:       network,
		Memo:          c.String("memo"),
		InviterPubKey: pubkey,
	})
	if err != nil {
		return err
	}
	norm, _ := protocol.NormalizeCode(code)
	return printJSON(c.App.Writer, map[string]string{
		"code":     norm,
		"envelope": hex.EncodeToString(env),
	})
}
