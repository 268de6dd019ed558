// Package chains is the registry of EVM networks the tools know about.
package chains

import (
	"fmt"
	"strings"
)

// Well-known chain IDs.
const (
	EthereumMainnet int64 = 1
	EthereumSepolia int64 = 11155111
	BaseMainnet     int64 = 8453
	BaseSepolia     int64 = 84532
)

// Chain describes one network.
type Chain struct {
	ID          int64
	Name        string
	Network     string // short identifier, e.g. "base-mainnet"
	ExplorerURL string
	Testnet     bool
}

var registry = map[int64]Chain{
	EthereumMainnet: {ID: EthereumMainnet, Name: "Ethereum", Network: "ethereum-mainnet", ExplorerURL: "https://etherscan.io"},
	EthereumSepolia: {ID: EthereumSepolia, Name: "Sepolia", Network: "ethereum-sepolia", ExplorerURL: "https://sepolia.etherscan.io", Testnet: true},
	BaseMainnet:     {ID: BaseMainnet, Name: "Base", Network: "base-mainnet", ExplorerURL: "https://basescan.org"},
	BaseSepolia:     {ID: BaseSepolia, Name: "Base Sepolia", Network: "base-sepolia", ExplorerURL: "https://sepolia.basescan.org", Testnet: true},
}

// Lookup returns the chain for id.
func Lookup(id int64) (Chain, bool) {
	c, ok := registry[id]
	return c, ok
}

// Name returns a display name for id, falling back to "chain <id>".
func Name(id int64) string {
	if c, ok := registry[id]; ok {
		return c.Name
	}
	return fmt.Sprintf("chain %d", id)
}

// TxURL returns the explorer link for a transaction, or "" for unknown chains.
func TxURL(id int64, hash string) string {
	c, ok := registry[id]
	if !ok {
		return ""
	}
	return c.ExplorerURL + "/tx/" + hash
}

// AddressURL returns the explorer link for an address, or "" for unknown chains.
func AddressURL(id int64, addr string) string {
	c, ok := registry[id]
	if !ok {
		return ""
	}
	return c.ExplorerURL + "/address/" + addr
}

// RequireSupported returns an error unless id is one of allowed.
func RequireSupported(id int64, allowed ...int64) error {
	for _, a := range allowed {
		if a == id {
			return nil
		}
	}
	return fmt.Errorf("Not implemented on %s", Name(id)) //nolint:staticcheck // user-facing message
}

// ParseID accepts a decimal chain id or a network name such as "base-sepolia".
func ParseID(s string) (int64, bool) {
	s = strings.TrimSpace(strings.ToLower(s))
	for id, c := range registry {
		if c.Network == s || strings.EqualFold(c.Name, s) || fmt.Sprint(id) == s {
			return id, true
		}
	}
	return 0, false
}
