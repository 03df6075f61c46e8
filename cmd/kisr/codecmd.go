package main

import (
	"github.com/urfave/cli/v2"

	"kisr.dev/kisr/crypto"
	"kisr.dev/kisr/protocol"
)

var commandCode = &cli.Command{
	Name:  "code",
	Usage: "generate and normalize invite codes",
	Subcommands: []*cli.Command{
		{
			Name:  "generate",
			Usage: "print a fresh invite code",
			Action: func(c *cli.Context) error {
				code, err := protocol.GenerateCode(crypto.StdCryptoProvider{})
				if err != nil {
					return err
				}
				return printJSON(c.App.Writer, map[string]string{"code": code})
			},
		},
		{
			Name:      "normalize",
			Usage:     "normalize a user-typed code",
			ArgsUsage: "<code>",
			Action: func(c *cli.Context) error {
				if c.NArg() != 1 {
					return usagef("normalize takes exactly one code")
				}
				code, ok := protocol.NormalizeCode(c.Args().First())
				if !ok {
					return protocol.NewError(protocol.KISR_ERR_INVALID_CODE, "code does not normalize")
				}
				return printJSON(c.App.Writer, map[string]any{"code": code, "valid": protocol.ValidateCode(code)})
			},
		},
	},
}
