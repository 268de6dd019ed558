package wallet

import (
	"crypto/ecdsa"
	"crypto/sha512"
	"fmt"
	"regexp"
	"strings"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/tarancss/hd"
	"golang.org/x/crypto/pbkdf2"
)

var hexKeyRegex = regexp.MustCompile(`^[0-9a-fA-F]{64}$`)

// loadKey returns the signing key from a hex private key or, failing that,
// a BIP-39 mnemonic. Both empty means read-only (nil, nil).
func loadKey(privateKey, seedPhrase string) (*ecdsa.PrivateKey, error) {
	if privateKey != "" {
		hexKey := strings.TrimPrefix(privateKey, "0x")
		if !hexKeyRegex.MatchString(hexKey) {
			return nil, fmt.Errorf("%w: must be 64 hex characters", ErrInvalidPrivateKey)
		}
		key, err := crypto.HexToECDSA(hexKey)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidPrivateKey, err)
		}
		return key, nil
	}
	if strings.TrimSpace(seedPhrase) != "" {
		return KeyFromMnemonic(seedPhrase, "")
	}
	return nil, nil
}

// MnemonicSeed derives the 64-byte BIP-39 seed from a mnemonic.
func MnemonicSeed(mnemonic, passphrase string) []byte {
	normalized := strings.Join(strings.Fields(strings.ToLower(mnemonic)), " ")
	return pbkdf2.Key([]byte(normalized), []byte("mnemonic"+passphrase), 2048, 64, sha512.New)
}

// KeyFromMnemonic derives the first external account key (m/44'/60'/0'/0/0).
func KeyFromMnemonic(mnemonic, passphrase string) (*ecdsa.PrivateKey, error) {
	words := len(strings.Fields(mnemonic))
	if words%3 != 0 || words < 12 || words > 24 {
		return nil, fmt.Errorf("%w: mnemonic must have 12-24 words, got %d", ErrInvalidPrivateKey, words)
	}

	hdw, err := hd.Init(MnemonicSeed(mnemonic, passphrase))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPrivateKey, err)
	}
	_, raw, _, err := hdw.Address(0, hd.External, 0)
	if err != nil {
		return nil, fmt.Errorf("%w: derive account: %v", ErrInvalidPrivateKey, err)
	}
	key, err := crypto.ToECDSA(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPrivateKey, err)
	}
	return key, nil
}
