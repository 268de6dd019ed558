// Package ens resolves ENS names to addresses and back using the registry
// contract directly.
package ens

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"golang.org/x/net/idna"
)

// RegistryAddress is the ENS registry, identical on mainnet and Sepolia.
var RegistryAddress = common.HexToAddress("0x00000000000C2E074eC69A0dFb2997BA6C7d2e1e")

// ErrNotFound means the name or address has no usable record.
var ErrNotFound = errors.New("ens: no record")

const registryABI = `[{"inputs":[{"name":"node","type":"bytes32"}],"name":"resolver","outputs":[{"name":"","type":"address"}],"stateMutability":"view","type":"function"}]`

const resolverABI = `[
	{"inputs":[{"name":"node","type":"bytes32"}],"name":"addr","outputs":[{"name":"","type":"address"}],"stateMutability":"view","type":"function"},
	{"inputs":[{"name":"node","type":"bytes32"}],"name":"name","outputs":[{"name":"","type":"string"}],"stateMutability":"view","type":"function"}
]`

var (
	registry = mustParse(registryABI)
	resolver = mustParse(resolverABI)

	profile = idna.New(idna.MapForLookup(), idna.Transitional(false), idna.StrictDomainName(false))
)

// Caller performs eth_call.
type Caller interface {
	CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// Resolver answers ENS queries on the chains it has clients for.
type Resolver struct {
	clients map[int64]Caller
}

// New returns a resolver. Chains missing from clients are unsupported.
func New(clients map[int64]Caller) *Resolver {
	return &Resolver{clients: clients}
}

func (r *Resolver) client(chainID int64) (Caller, error) {
	if chainID == 0 {
		chainID = 1
	}
	c, ok := r.clients[chainID]
	if !ok || c == nil {
		return nil, fmt.Errorf("Chain ID %d not supported for ENS resolution", chainID)
	}
	return c, nil
}

// Normalize applies UTS-46 mapping to name.
func Normalize(name string) (string, error) {
	out, err := profile.ToUnicode(strings.TrimSpace(name))
	if err != nil {
		return "", fmt.Errorf("invalid ENS name %q: %w", name, err)
	}
	return out, nil
}

// Namehash computes the EIP-137 node of an already normalised name.
func Namehash(name string) common.Hash {
	var node common.Hash
	if name == "" {
		return node
	}
	labels := strings.Split(name, ".")
	for i := len(labels) - 1; i >= 0; i-- {
		label := crypto.Keccak256([]byte(labels[i]))
		node = crypto.Keccak256Hash(node[:], label)
	}
	return node
}

// ResolveName returns the address name points to.
func (r *Resolver) ResolveName(ctx context.Context, name string, chainID int64) (common.Address, error) {
	c, err := r.client(chainID)
	if err != nil {
		return common.Address{}, err
	}
	addr, err := resolve(ctx, c, name)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return common.Address{}, fmt.Errorf("Failed to resolve ENS name: %s", name)
		}
		return common.Address{}, fmt.Errorf("Failed to resolve ENS name: %w", err)
	}
	return addr, nil
}

// LookupAddress returns the primary name of addr. The name must resolve
// back to addr to count.
func (r *Resolver) LookupAddress(ctx context.Context, addr common.Address, chainID int64) (string, error) {
	c, err := r.client(chainID)
	if err != nil {
		return "", err
	}
	name, err := reverse(ctx, c, addr)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return "", fmt.Errorf("Failed to lookup ENS address: %s", addr.Hex())
		}
		return "", fmt.Errorf("Failed to lookup ENS address: %w", err)
	}
	return name, nil
}

func resolve(ctx context.Context, c Caller, name string) (common.Address, error) {
	normalized, err := Normalize(name)
	if err != nil {
		return common.Address{}, err
	}
	node := Namehash(normalized)

	res, err := resolverOf(ctx, c, node)
	if err != nil {
		return common.Address{}, err
	}
	out, err := call(ctx, c, resolver, res, "addr", node)
	if err != nil {
		return common.Address{}, err
	}
	addr := out[0].(common.Address)
	if addr == (common.Address{}) {
		return common.Address{}, ErrNotFound
	}
	return addr, nil
}

func reverse(ctx context.Context, c Caller, addr common.Address) (string, error) {
	node := Namehash(strings.ToLower(addr.Hex()[2:]) + ".addr.reverse")

	res, err := resolverOf(ctx, c, node)
	if err != nil {
		return "", err
	}
	out, err := call(ctx, c, resolver, res, "name", node)
	if err != nil {
		return "", err
	}
	name := out[0].(string)
	if name == "" {
		return "", ErrNotFound
	}

	forward, err := resolve(ctx, c, name)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return "", ErrNotFound
		}
		return "", err
	}
	if forward != addr {
		return "", ErrNotFound
	}
	return name, nil
}

func resolverOf(ctx context.Context, c Caller, node common.Hash) (common.Address, error) {
	out, err := call(ctx, c, registry, RegistryAddress, "resolver", node)
	if err != nil {
		return common.Address{}, err
	}
	res := out[0].(common.Address)
	if res == (common.Address{}) {
		return common.Address{}, ErrNotFound
	}
	return res, nil
}

func call(ctx context.Context, c Caller, parsed abi.ABI, to common.Address, method string, node common.Hash) ([]any, error) {
	data, err := parsed.Pack(method, node)
	if err != nil {
		return nil, err
	}
	raw, err := c.CallContract(ctx, ethereum.CallMsg{To: &to, Data: data}, nil)
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 {
		return nil, ErrNotFound
	}
	return parsed.Unpack(method, raw)
}

func mustParse(def string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(def))
	if err != nil {
		panic(err)
	}
	return parsed
}
