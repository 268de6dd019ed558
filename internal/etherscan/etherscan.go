// Package etherscan queries the Etherscan V2 multichain API.
package etherscan

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"

	"github.com/mbd888/basemcp/internal/upstream"
)

// ErrNoAPIKey is returned when ETHERSCAN_API_KEY is not configured.
var ErrNoAPIKey = errors.New("ETHERSCAN_API_KEY is not set")

const apiPath = "/v2/api"

// Client wraps the Etherscan V2 API.
type Client struct {
	api          *upstream.Client
	apiKey       string
	defaultChain int64
}

// New creates a client. defaultChain is used when a call passes chainID 0.
func New(api *upstream.Client, apiKey string, defaultChain int64) *Client {
	return &Client{api: api, apiKey: apiKey, defaultChain: defaultChain}
}

func (c *Client) chain(id int64) int64 {
	if id == 0 {
		return c.defaultChain
	}
	return id
}

type envelope struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Result  json.RawMessage `json:"result"`
}

// call performs one API request and decodes result into out. A status "0"
// response whose result is an empty list ("No transactions found") leaves
// out untouched and succeeds.
func (c *Client) call(ctx context.Context, chainID int64, params url.Values, out any) error {
	if c.apiKey == "" {
		return ErrNoAPIKey
	}
	params.Set("chainid", strconv.FormatInt(c.chain(chainID), 10))
	params.Set("apikey", c.apiKey)

	var env envelope
	if err := c.api.GetJSON(ctx, apiPath, params, &env); err != nil {
		return fmt.Errorf("Failed to fetch from Etherscan API: %w", err)
	}

	if env.Status != "1" {
		var list []json.RawMessage
		if json.Unmarshal(env.Result, &list) == nil && len(list) == 0 {
			return nil
		}
		var msg string
		if json.Unmarshal(env.Result, &msg) != nil || msg == "" {
			msg = env.Message
		}
		return fmt.Errorf("Etherscan API error: %s", msg)
	}

	if err := json.Unmarshal(env.Result, out); err != nil {
		return fmt.Errorf("decode etherscan result: %w", err)
	}
	return nil
}
