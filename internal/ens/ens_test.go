package ens

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mbd888/basemcp/internal/testutil"
)

var (
	resolverAddr = common.HexToAddress("0x4976fb03C32e5B8cfe2b6cCB31c09Ba78EBaBa41")
	vitalik      = common.HexToAddress("0xd8dA6BF26964aF9D7eEd9e03E53415D37aA96045")
)

func TestNamehash(t *testing.T) {
	assert.Equal(t, common.Hash{}, Namehash(""))
	assert.Equal(t, "0x93cdeb708b7545dc668eb9280176169d1c33cfd8ed6f04690a0bcc88a93fc4ae", Namehash("eth").Hex())
	assert.Equal(t, "0xde9b09fd7c5f901e23a3f19fecc54828e9c848539801e86591bd9801b019f84f", Namehash("foo.eth").Hex())
}

func TestNormalize(t *testing.T) {
	got, err := Normalize("  Vitalik.ETH ")
	require.NoError(t, err)
	assert.Equal(t, "vitalik.eth", got)
}

// fakeENS wires a registry and one resolver into a fake chain.
func fakeENS(names map[string]common.Address, reverseName map[common.Address]string) *testutil.FakeEthClient {
	fake := testutil.NewFakeEthClient(1)
	nodes := make(map[common.Hash]bool)
	for name := range names {
		nodes[Namehash(name)] = true
	}
	for addr := range reverseName {
		nodes[Namehash(lower(addr)+".addr.reverse")] = true
	}

	fake.Stub(RegistryAddress, registry, "resolver", func(args []any) ([]any, error) {
		if nodes[common.Hash(args[0].([32]byte))] {
			return []any{resolverAddr}, nil
		}
		return []any{common.Address{}}, nil
	})
	fake.Stub(resolverAddr, resolver, "addr", func(args []any) ([]any, error) {
		node := common.Hash(args[0].([32]byte))
		for name, addr := range names {
			if Namehash(name) == node {
				return []any{addr}, nil
			}
		}
		return []any{common.Address{}}, nil
	})
	fake.Stub(resolverAddr, resolver, "name", func(args []any) ([]any, error) {
		node := common.Hash(args[0].([32]byte))
		for addr, name := range reverseName {
			if Namehash(lower(addr)+".addr.reverse") == node {
				return []any{name}, nil
			}
		}
		return []any{""}, nil
	})
	return fake
}

func lower(a common.Address) string {
	return common.Bytes2Hex(a[:])
}

func TestResolveName(t *testing.T) {
	fake := fakeENS(map[string]common.Address{"vitalik.eth": vitalik}, nil)
	r := New(map[int64]Caller{1: fake})

	got, err := r.ResolveName(context.Background(), "Vitalik.eth", 0)
	require.NoError(t, err)
	assert.Equal(t, vitalik, got)

	_, err = r.ResolveName(context.Background(), "nobody.eth", 1)
	assert.EqualError(t, err, "Failed to resolve ENS name: nobody.eth")

	_, err = r.ResolveName(context.Background(), "vitalik.eth", 5)
	assert.EqualError(t, err, "Chain ID 5 not supported for ENS resolution")
}

func TestLookupAddress(t *testing.T) {
	impostor := common.HexToAddress("0x0000000000000000000000000000000000000bad")
	fake := fakeENS(
		map[string]common.Address{"vitalik.eth": vitalik},
		map[common.Address]string{vitalik: "vitalik.eth", impostor: "vitalik.eth"},
	)
	r := New(map[int64]Caller{1: fake})

	name, err := r.LookupAddress(context.Background(), vitalik, 1)
	require.NoError(t, err)
	assert.Equal(t, "vitalik.eth", name)

	_, err = r.LookupAddress(context.Background(), impostor, 1)
	assert.EqualError(t, err, "Failed to lookup ENS address: "+impostor.Hex(), "forward check must fail")

	unknown := common.HexToAddress("0x0000000000000000000000000000000000000001")
	_, err = r.LookupAddress(context.Background(), unknown, 1)
	assert.Error(t, err)
}

type brokenCaller struct{}

func (brokenCaller) CallContract(context.Context, ethereum.CallMsg, *big.Int) ([]byte, error) {
	return nil, errors.New("connection refused")
}

func TestResolveName_RPCError(t *testing.T) {
	r := New(map[int64]Caller{11155111: brokenCaller{}})
	_, err := r.ResolveName(context.Background(), "a.eth", 11155111)
	assert.EqualError(t, err, "Failed to resolve ENS name: connection refused")
}
