// Package neynar resolves Farcaster usernames through the Neynar API.
package neynar

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/mbd888/basemcp/internal/upstream"
)

// ErrNoAPIKey is returned when NEYNAR_API_KEY is not configured.
var ErrNoAPIKey = errors.New("NEYNAR_API_KEY environment variable is not set")

// Client wraps the Neynar v2 API.
type Client struct {
	api    *upstream.Client
	hasKey bool
}

// New creates a client. The key travels in the x-api-key header.
func New(api *upstream.Client, apiKey string) *Client {
	return &Client{api: api.WithHeader("x-api-key", apiKey), hasKey: apiKey != ""}
}

type searchResponse struct {
	Result struct {
		Users []user `json:"users"`
	} `json:"result"`
}

type user struct {
	FID               int64  `json:"fid"`
	Username          string `json:"username"`
	VerifiedAddresses struct {
		EthAddresses []string `json:"eth_addresses"`
		Primary      struct {
			EthAddress string `json:"eth_address"`
		} `json:"primary"`
	} `json:"verified_addresses"`
}

// Result is the farcaster_username payload. Lookups that find nothing
// still succeed at the Go level with Success false and a Message.
type Result struct {
	Success    bool   `json:"success"`
	Username   string `json:"username,omitempty"`
	FID        int64  `json:"fid,omitempty"`
	EthAddress string `json:"ethAddress,omitempty"`
	Message    string `json:"message,omitempty"`
}

// Username finds the verified Ethereum address of a Farcaster user.
func (c *Client) Username(ctx context.Context, username string) (*Result, error) {
	if !c.hasKey {
		return nil, ErrNoAPIKey
	}

	var resp searchResponse
	q := url.Values{"q": {username}}
	if err := c.api.GetJSON(ctx, "/v2/farcaster/user/search", q, &resp); err != nil {
		return &Result{Message: fmt.Sprintf("Error resolving Farcaster username: %v", err)}, nil
	}

	var match *user
	for i := range resp.Result.Users {
		if strings.EqualFold(resp.Result.Users[i].Username, username) {
			match = &resp.Result.Users[i]
			break
		}
	}
	if match == nil {
		return &Result{Message: "No Farcaster user found with username: " + username}, nil
	}

	verified := match.VerifiedAddresses
	if len(verified.EthAddresses) == 0 {
		return &Result{Message: fmt.Sprintf("User %s has no verified Ethereum addresses", username)}, nil
	}
	addr := verified.Primary.EthAddress
	if addr == "" {
		addr = verified.EthAddresses[0]
	}

	return &Result{Success: true, Username: match.Username, FID: match.FID, EthAddress: addr}, nil
}
