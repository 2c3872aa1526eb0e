package main

import (
	"fmt"
	"net/http"

	"savings-lockbox/internal/adapter/http/dto"

	"github.com/urfave/cli/v2"
)

var airdropCmd = cli.Command{
	Name:  "airdrop",
	Usage: "credit test funds from the development faucet",
	Flags: []cli.Flag{
		&amountFlag,
		&cli.StringFlag{
			Name:  "address",
			Usage: "account to credit, defaults to the logged-in owner",
		},
	},
	Action: airdropAction,
}

func airdropAction(c *cli.Context) error {
	amount, err := dto.ParseUnits(c.String("amount"))
	if err != nil {
		return fmt.Errorf("invalid amount: %w", err)
	}

	var resp dto.AirdropResponse
	req := dto.AirdropRequest{Address: c.String("address"), Amount: &amount}
	if err := call(c, http.MethodPost, "/api/v1/faucet", req, &resp, true, nil); err != nil {
		return err
	}
	return printJSON(c, resp)
}
