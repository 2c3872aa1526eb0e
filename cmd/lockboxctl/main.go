package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/urfave/cli/v2"
)

var defaultDataDir = btcutil.AppDataDir("lockboxctl", false)

const (
	stateFileName = "state.json"

	keyServer  = "server"
	keyKeyPath = "key_path"
	keyToken   = "token"
	keyOwner   = "owner"
)

var dataDirFlag = cli.StringFlag{
	Name:    "datadir",
	Usage:   "directory holding the CLI state and keys",
	Value:   defaultDataDir,
	EnvVars: []string{"LOCKBOXCTL_DATADIR"},
}

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "[lockboxctl] %v\n", err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	app := cli.NewApp()
	app.Name = "lockboxctl"
	app.Usage = "Command line client for the LockBox savings API"
	app.Flags = []cli.Flag{&dataDirFlag}
	app.Commands = []*cli.Command{
		&configCmd,
		&keygenCmd,
		&loginCmd,
		&initCmd,
		&depositCmd,
		&withdrawCmd,
		&emergencyCmd,
		&showCmd,
		&movementsCmd,
		&airdropCmd,
	}
	return app
}

func statePath(c *cli.Context) string {
	return filepath.Join(c.String("datadir"), stateFileName)
}

func getState(c *cli.Context) (map[string]string, error) {
	data := map[string]string{}

	file, err := os.ReadFile(statePath(c))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return data, nil
		}
		return nil, fmt.Errorf("read state: %w", err)
	}
	if err := json.Unmarshal(file, &data); err != nil {
		return nil, fmt.Errorf("decode state: %w", err)
	}
	return data, nil
}

func setState(c *cli.Context, data map[string]string) error {
	if err := os.MkdirAll(c.String("datadir"), 0o700); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	current, err := getState(c)
	if err != nil {
		return err
	}
	for k, v := range data {
		current[k] = v
	}

	raw, err := json.MarshalIndent(current, "", "\t")
	if err != nil {
		return err
	}
	if err := os.WriteFile(statePath(c), raw, 0o600); err != nil {
		return fmt.Errorf("writing to file: %w", err)
	}
	return nil
}

func requireState(c *cli.Context, key, hint string) (string, error) {
	state, err := getState(c)
	if err != nil {
		return "", err
	}
	v, ok := state[key]
	if !ok || v == "" {
		return "", fmt.Errorf("%s is not set: %s", key, hint)
	}
	return v, nil
}

// apiError mirrors the server's error envelope.
type apiError struct {
	ErrorCode string `json:"error_code"`
	Message   string `json:"message"`
}

func (e *apiError) Error() string {
	return e.ErrorCode + ": " + e.Message
}

var httpClient = &http.Client{Timeout: 15 * time.Second}

// call sends a JSON request to the configured server and decodes the data
// field of the response into out.
func call(c *cli.Context, method, path string, body, out interface{}, authenticated bool, headers map[string]string) error {
	server, err := requireState(c, keyServer, "run 'config set server <url>'")
	if err != nil {
		return err
	}

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(c.Context, method, strings.TrimRight(server, "/")+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	if authenticated {
		token, err := requireState(c, keyToken, "run 'login' first")
		if err != nil {
			return err
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= http.StatusBadRequest {
		apiErr := &apiError{}
		if err := json.Unmarshal(raw, apiErr); err != nil || apiErr.ErrorCode == "" {
			return fmt.Errorf("server returned %s", resp.Status)
		}
		return apiErr
	}

	if out == nil {
		return nil
	}
	var envelope struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return json.Unmarshal(envelope.Data, out)
}

func printJSON(c *cli.Context, v interface{}) error {
	raw, err := json.MarshalIndent(v, "", "\t")
	if err != nil {
		return err
	}
	fmt.Fprintln(c.App.Writer, string(raw))
	return nil
}
