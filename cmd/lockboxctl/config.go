package main

import (
	"errors"
	"fmt"
	"sort"

	"github.com/urfave/cli/v2"
)

var configCmd = cli.Command{
	Name:   "config",
	Usage:  "Print local configuration of the lockbox CLI",
	Action: configAction,
	Subcommands: []*cli.Command{
		{
			Name:      "set",
			Usage:     "set a <key> <value> in the local state",
			ArgsUsage: "<key> <value>",
			Action:    configSetAction,
		},
	},
}

func configAction(c *cli.Context) error {
	state, err := getState(c)
	if err != nil {
		return err
	}

	keys := make([]string, 0, len(state))
	for k := range state {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		value := state[k]
		if k == keyToken && len(value) > 12 {
			value = value[:12] + "..."
		}
		fmt.Fprintf(c.App.Writer, "%s: %s\n", k, value)
	}
	return nil
}

func configSetAction(c *cli.Context) error {
	if c.NArg() < 2 {
		return errors.New("key and value are missing")
	}

	key := c.Args().Get(0)
	value := c.Args().Get(1)

	if err := setState(c, map[string]string{key: value}); err != nil {
		return err
	}

	fmt.Fprintf(c.App.Writer, "%s %s has been set\n", key, value)
	return nil
}
