package main

import (
	"github.com/urfave/cli/v2"

	"kisr.dev/kisr/protocol"
)

var commandDeeplink = &cli.Command{
	Name:  "deeplink",
	Usage: "build and parse kaspa:redeem links",
	Subcommands: []*cli.Command{
		{
			Name:  "build",
			Usage: "render a redeem link",
			Flags: []cli.Flag{
				&cli.StringFlag{Name: "txid", Usage: "anchor transaction id", Required: true},
				&cli.StringFlag{Name: "code", Usage: "invite code to embed"},
				&cli.StringFlag{Name: "inviter", Usage: "inviter address to embed"},
			},
			Action: func(c *cli.Context) error {
				if _, err := protocol.ParseTxID(c.String("txid")); err != nil {
					return usagef("bad txid: %v", err)
				}
				code := c.String("code")
				if code != "" {
					norm, ok := protocol.NormalizeCode(code)
					if !ok || !protocol.ValidateCode(norm) {
						return protocol.NewError(protocol.KISR_ERR_INVALID_CODE, "code is not a valid invite code")
					}
					code = norm
				}
				link := protocol.BuildDeeplink(code, c.String("txid"), c.String("inviter"))
				return printJSON(c.App.Writer, map[string]string{"deeplink": link})
			},
		},
		{
			Name:      "parse",
			Usage:     "parse a redeem link",
			ArgsUsage: "<link>",
			Action: func(c *cli.Context) error {
				if c.NArg() != 1 {
					return usagef("parse takes exactly one link")
				}
				dl, err := protocol.ParseDeeplink(c.Args().First())
				if err != nil {
					return err
				}
				return printJSON(c.App.Writer, map[string]string{
					"txid":    dl.TxID,
					"code":    dl.Code,
					"inviter": dl.InviterAddress,
				})
			},
		},
	},
}
