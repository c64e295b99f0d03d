package exchange

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

// Signer holds a secp256k1 API key and signs keccak256 digests with it.
type Signer struct {
	privKey *ecdsa.PrivateKey
	address common.Address
}

func NewSigner(hexKey string) (*Signer, error) {
	clean := strings.TrimSpace(hexKey)
	if clean == "" {
		return nil, errors.New("private key is required")
	}
	clean = strings.TrimPrefix(clean, "0x")
	key, err := crypto.HexToECDSA(clean)
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}
	return &Signer{privKey: key, address: crypto.PubkeyToAddress(key.PublicKey)}, nil
}

func (s *Signer) Address() common.Address {
	return s.address
}

// SignPayload signs keccak256(payload) and returns the 65 byte [R || S || V] signature.
func (s *Signer) SignPayload(payload []byte) ([]byte, error) {
	return s.SignDigest(crypto.Keccak256(payload))
}

func (s *Signer) SignDigest(digest []byte) ([]byte, error) {
	if len(digest) != 32 {
		return nil, fmt.Errorf("digest must be 32 bytes, got %d", len(digest))
	}
	sig, err := crypto.Sign(digest, s.privKey)
	if err != nil {
		return nil, err
	}
	if len(sig) != 65 {
		return nil, fmt.Errorf("unexpected signature length %d", len(sig))
	}
	return sig, nil
}

// SignMessage signs a text message and returns the hex encoded signature.
func (s *Signer) SignMessage(msg string) (string, error) {
	sig, err := s.SignPayload([]byte(msg))
	if err != nil {
		return "", err
	}
	return hexutil.Encode(sig), nil
}

// RecoverAddress returns the address that produced sig over keccak256(payload).
func RecoverAddress(payload, sig []byte) (common.Address, error) {
	pub, err := crypto.SigToPub(crypto.Keccak256(payload), sig)
	if err != nil {
		return common.Address{}, err
	}
	return crypto.PubkeyToAddress(*pub), nil
}
