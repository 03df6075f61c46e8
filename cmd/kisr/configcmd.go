package main

import "github.com/urfave/cli/v2"

var commandConfig = &cli.Command{
	Name:  "config",
	Usage: "print the effective configuration",
	Action: func(c *cli.Context) error {
		cfg, err := loadConfig(c)
		if err != nil {
			return err
		}
		return printJSON(c.App.Writer, cfg)
	},
}
