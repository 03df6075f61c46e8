package main

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/urfave/cli/v2"

	"kisr.dev/kisr/crypto"
	"kisr.dev/kisr/invite"
	"kisr.dev/kisr/node"
	"kisr.dev/kisr/node/store"
	"kisr.dev/kisr/protocol"
	"kisr.dev/kisr/wallet/bridge"
)

var commandInvite = &cli.Command{
	Name:  "invite",
	Usage: "run invite flows against a node and signer bridge",
	Subcommands: []*cli.Command{
		{
			Name:  "create",
			Usage: "fund, presign, seal and anchor a new invite",
			Flags: append([]cli.Flag{
				&cli.StringFlag{Name: "memo", Usage: "memo (at most 40 UTF-16 units)"},
				&cli.StringFlag{Name: "pubkey", Usage: "inviter public key hex"},
				&cli.BoolFlag{Name: "link-inviter", Usage: "embed --wallet-address in the deeplink"},
				&cli.StringFlag{Name: "resume", Usage: "resume an earlier invite by id"},
			}, amountFlags...),
			Action: inviteCreate,
		},
		{
			Name:  "redeem",
			Usage: "claim an invite into --to",
			Flags: []cli.Flag{
				&cli.StringFlag{Name: "link", Usage: "kaspa:redeem deeplink", Required: true},
				&cli.StringFlag{Name: "code", Usage: "invite code when the link carries none"},
				&cli.StringFlag{Name: "to", Usage: "destination address", Required: true},
				&cli.StringFlag{Name: "from", Usage: "address holding the invite output"},
				&cli.Uint64Flag{Name: "fee", Usage: "redemption fee in sompi"},
			},
			Action: inviteRedeem,
		},
		{
			Name:   "list",
			Usage:  "list invites in the local ledger",
			Action: inviteList,
		},
	},
}

type session struct {
	cfg     node.Config
	network protocol.NetworkID
	logger  *slog.Logger
	db      *store.DB
	svc     *invite.Service
	closers []func() error
}

func (r *session) Close() {
	for i := len(r.closers) - 1; i >= 0; i-- {
		_ = r.closers[i]()
	}
}

// newSession wires store, node client, bridge wallet and the invite service.
func newSession(c *cli.Context) (*session, error) {
	cfg, err := loadConfig(c)
	if err != nil {
		return nil, err
	}
	if cfg.BridgeURL == "" {
		return nil, usagef("bridge_url is required for invite flows")
	}
	network, _ := cfg.NetworkID()
	logger := newLogger(cfg.LogLevel, c.App.ErrWriter)
	r := &session{cfg: cfg, network: network, logger: logger}

	db, err := store.Open(cfg.DataDir, network)
	if err != nil {
		return nil, err
	}
	r.db = db
	r.closers = append(r.closers, db.Close)

	nc, closeNode, err := node.NewClient(cfg, network, logger)
	if err != nil {
		r.Close()
		return nil, err
	}
	r.closers = append(r.closers, closeNode)

	wallet, err := bridge.New(bridge.Config{
		URL:     cfg.BridgeURL,
		Token:   cfg.BridgeToken,
		Network: &network,
		Node:    nc,
		Address: cfg.WalletAddress,
		FeeRate: cfg.FeeRate,
		Logger:  logger,
	})
	if err != nil {
		r.Close()
		return nil, usageError{err: err}
	}
	codec, err := protocol.NewEnvelopeCodec(crypto.StdCryptoProvider{})
	if err != nil {
		r.Close()
		return nil, err
	}
	svc, err := invite.NewService(invite.Config{
		Wallet:    wallet,
		Node:      nc,
		Codec:     codec,
		Store:     db,
		Logger:    logger,
		Poll:      cfg.PollConfig(),
		RedeemFee: cfg.RedeemFee,
		OnState: func(ev invite.StateEvent) {
			logger.Info("state", "flow", ev.Flow, "state", ev.State)
		},
	})
	if err != nil {
		r.Close()
		return nil, err
	}
	r.svc = svc
	return r, nil
}

func inviteCreate(c *cli.Context) error {
	ctx := c.Context
	rt, err := newSession(c)
	if err != nil {
		return err
	}
	defer rt.Close()

	params := invite.CreateParams{Memo: c.String("memo")}
	if c.IsSet("pubkey") {
		if params.InviterPubKey, err = decodeHexArg(c.String("pubkey"), "pubkey"); err != nil {
			return err
		}
	}
	if c.Bool("link-inviter") {
		if rt.cfg.WalletAddress == "" {
			return usagef("--link-inviter needs --wallet-address")
		}
		params.InviterAddress = rt.cfg.WalletAddress
	}
	if id := c.String("resume"); id != "" {
		uid, err := uuid.Parse(id)
		if err != nil {
			return usagef("bad --resume id: %v", err)
		}
		prog, ok, err := rt.db.GetInvite(uid)
		if err != nil {
			return err
		}
		if !ok {
			return usagef("no invite %s in %s", uid, rt.db.Dir())
		}
		params.Resume = prog
		params.Amount = prog.Amount
		params.Memo = prog.Memo
	} else {
		if params.Amount, err = amountFromFlags(c); err != nil {
			return err
		}
	}

	res, prog, err := rt.svc.CreateInvite(ctx, params)
	if err != nil {
		if prog != nil {
			rt.logger.Error("invite create stopped", "invite_id", prog.ID.String(), "state", prog.State.String())
			return fmt.Errorf("%w (resume with --resume %s)", err, prog.ID)
		}
		return err
	}
	return printJSON(c.App.Writer, map[string]any{
		"id":          res.Progress.ID.String(),
		"code":        res.Code,
		"deeplink":    res.Deeplink,
		"anchor_txid": res.AnchorTxID.String(),
		"outpoint":    res.Outpoint.String(),
		"amount_kas":  protocol.FormatSompi(res.Amount),
	})
}

func inviteRedeem(c *cli.Context) error {
	ctx := c.Context
	rt, err := newSession(c)
	if err != nil {
		return err
	}
	defer rt.Close()

	res, err := rt.svc.RedeemInvite(ctx, invite.RedeemParams{
		Link:        c.String("link"),
		Code:        c.String("code"),
		ToAddress:   c.String("to"),
		FromAddress: c.String("from"),
		Fee:         c.Uint64("fee"),
		Timeout:     rt.cfg.RedeemTimeout(),
	})
	if err != nil {
		return err
	}
	return printJSON(c.App.Writer, map[string]any{
		"txid":        res.TxID.String(),
		"anchor_txid": res.AnchorTxID.String(),
		"input":       res.Input.Outpoint.String(),
		"amount_kas":  protocol.FormatSompi(res.Amount),
		"fee_sompi":   res.Fee,
		"network":     res.Network.String(),
		"memo":        res.Memo,
	})
}

type inviteListItem struct {
	ID         string `json:"id"`
	State      string `json:"state"`
	AmountKAS  string `json:"amount_kas"`
	Outpoint   string `json:"outpoint,omitempty"`
	AnchorTxID string `json:"anchor_txid,omitempty"`
	Memo       string `json:"memo,omitempty"`
	CreatedAt  string `json:"created_at,omitempty"`
}

func inviteList(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	network, _ := cfg.NetworkID()
	db, err := store.Open(cfg.DataDir, network)
	if err != nil {
		return err
	}
	defer db.Close()

	list, err := db.ListInvites()
	if err != nil {
		return err
	}
	out := make([]inviteListItem, 0, len(list))
	for _, p := range list {
		item := inviteListItem{
			ID:        p.ID.String(),
			State:     p.State.String(),
			AmountKAS: protocol.FormatSompi(p.Amount),
			Memo:      p.Memo,
		}
		if p.State >= invite.CreateFunded {
			item.Outpoint = p.Outpoint.String()
		}
		if p.State >= invite.CreateAnchored {
			item.AnchorTxID = p.AnchorTxID.String()
		}
		if !p.CreatedAt.IsZero() {
			item.CreatedAt = p.CreatedAt.Format(time.RFC3339)
		}
		out = append(out, item)
	}
	return printJSON(c.App.Writer, out)
}
