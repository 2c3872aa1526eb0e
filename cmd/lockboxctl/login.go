package main

import (
	"crypto/ed25519"
	"net/http"
	"time"

	"savings-lockbox/internal/adapter/http/dto"
	"savings-lockbox/internal/service"

	"github.com/btcsuite/btcd/btcutil/base58"
	"github.com/google/uuid"
	"github.com/urfave/cli/v2"
)

var loginCmd = cli.Command{
	Name:   "login",
	Usage:  "sign a login challenge with the owner key and store the session token",
	Action: loginAction,
}

func loginAction(c *cli.Context) error {
	priv, err := loadKey(c)
	if err != nil {
		return err
	}
	owner, err := ownerOf(priv)
	if err != nil {
		return err
	}

	ts := time.Now().Unix()
	nonce := uuid.New().String()
	sig := ed25519.Sign(priv, []byte(service.BuildLoginMessage(owner, ts, nonce)))

	var resp dto.LoginResponse
	err = call(c, http.MethodPost, "/api/v1/auth/login", dto.LoginRequest{
		Address:   owner.String(),
		Timestamp: ts,
		Nonce:     nonce,
		Signature: base58.Encode(sig),
	}, &resp, false, nil)
	if err != nil {
		return err
	}

	if err := setState(c, map[string]string{keyToken: resp.Token, keyOwner: resp.Owner}); err != nil {
		return err
	}

	return printJSON(c, map[string]interface{}{
		"owner":      resp.Owner,
		"expires_at": time.Unix(resp.Expiry, 0).UTC().Format(time.RFC3339),
	})
}
