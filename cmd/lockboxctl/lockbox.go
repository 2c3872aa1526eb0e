package main

import (
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"savings-lockbox/internal/adapter/http/dto"

	"github.com/urfave/cli/v2"
)

var (
	amountFlag = cli.StringFlag{
		Name:     "amount",
		Usage:    "amount in whole tokens, e.g. 1.5",
		Required: true,
	}

	ownerFlag = cli.StringFlag{
		Name:  "owner",
		Usage: "lockbox owner address, defaults to the logged-in owner",
	}

	idempotencyFlag = cli.StringFlag{
		Name:  "idempotency-key",
		Usage: "reuse a key to retry a request without applying it twice",
	}
)

var initCmd = cli.Command{
	Name:  "init",
	Usage: "create a lockbox with a savings target",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:     "target",
			Usage:    "savings target in whole tokens",
			Required: true,
		},
		&idempotencyFlag,
	},
	Action: initAction,
}

var depositCmd = cli.Command{
	Name:   "deposit",
	Usage:  "move funds from the owner account into the lockbox",
	Flags:  []cli.Flag{&amountFlag, &ownerFlag, &idempotencyFlag},
	Action: amountAction("/api/v1/lockbox/deposit"),
}

var withdrawCmd = cli.Command{
	Name:   "withdraw",
	Usage:  "withdraw from a lockbox whose target has been reached",
	Flags:  []cli.Flag{&amountFlag, &ownerFlag, &idempotencyFlag},
	Action: amountAction("/api/v1/lockbox/withdraw"),
}

var emergencyCmd = cli.Command{
	Name:   "emergency",
	Usage:  "withdraw the whole balance before the target is reached",
	Flags:  []cli.Flag{&ownerFlag, &idempotencyFlag},
	Action: emergencyAction,
}

var showCmd = cli.Command{
	Name:  "show",
	Usage: "show a lockbox",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:  "owner",
			Usage: "read any owner's lockbox without logging in",
		},
	},
	Action: showAction,
}

var movementsCmd = cli.Command{
	Name:  "movements",
	Usage: "list deposits and withdrawals of the logged-in owner",
	Flags: []cli.Flag{
		&cli.IntFlag{Name: "page", Value: 1},
		&cli.IntFlag{Name: "page-size", Value: 20},
		&cli.StringFlag{Name: "kind", Usage: "DEPOSIT, WITHDRAW, EMERGENCY_WITHDRAW or CLOSE"},
	},
	Action: movementsAction,
}

func initAction(c *cli.Context) error {
	target, err := dto.ParseUnits(c.String("target"))
	if err != nil {
		return fmt.Errorf("invalid target: %w", err)
	}

	var resp dto.LockBoxResponse
	if err := call(c, http.MethodPost, "/api/v1/lockbox", dto.InitializeRequest{TargetAmount: &target}, &resp, true, idempotencyHeader(c)); err != nil {
		return err
	}
	return printJSON(c, resp)
}

func amountAction(path string) cli.ActionFunc {
	return func(c *cli.Context) error {
		amount, err := dto.ParseUnits(c.String("amount"))
		if err != nil {
			return fmt.Errorf("invalid amount: %w", err)
		}

		var resp dto.LockBoxResponse
		req := dto.AmountRequest{Amount: &amount, Owner: c.String("owner")}
		if err := call(c, http.MethodPost, path, req, &resp, true, idempotencyHeader(c)); err != nil {
			return err
		}
		return printJSON(c, resp)
	}
}

func emergencyAction(c *cli.Context) error {
	var resp dto.LockBoxResponse
	req := dto.EmergencyRequest{Owner: c.String("owner")}
	if err := call(c, http.MethodPost, "/api/v1/lockbox/emergency-withdraw", req, &resp, true, idempotencyHeader(c)); err != nil {
		return err
	}
	return printJSON(c, resp)
}

func showAction(c *cli.Context) error {
	var resp dto.LockBoxResponse
	var err error
	if owner := c.String("owner"); owner != "" {
		err = call(c, http.MethodGet, "/api/v1/lockboxes/"+url.PathEscape(owner), nil, &resp, false, nil)
	} else {
		err = call(c, http.MethodGet, "/api/v1/lockbox", nil, &resp, true, nil)
	}
	if err != nil {
		return err
	}
	return printJSON(c, resp)
}

func movementsAction(c *cli.Context) error {
	q := url.Values{}
	q.Set("page", strconv.Itoa(c.Int("page")))
	q.Set("page_size", strconv.Itoa(c.Int("page-size")))
	if kind := c.String("kind"); kind != "" {
		q.Set("kind", kind)
	}

	var resp dto.MovementListResponse
	if err := call(c, http.MethodGet, "/api/v1/lockbox/movements?"+q.Encode(), nil, &resp, true, nil); err != nil {
		return err
	}
	return printJSON(c, resp)
}

func idempotencyHeader(c *cli.Context) map[string]string {
	key := c.String("idempotency-key")
	if key == "" {
		return nil
	}
	return map[string]string{"Idempotency-Key": key}
}
