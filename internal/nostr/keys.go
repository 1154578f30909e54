package nostr

import (
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"

	"github.com/AreaLayer/daisy/internal/types"
)

// ErrInvalidKey is returned for secret keys that are not 32 bytes of hex.
var ErrInvalidKey = errors.New("invalid secret key")

// Signer produces Schnorr signatures over event ids for one identity.
type Signer interface {
	PublicKey() string
	Sign(id string) (string, error)
}

// KeySigner signs with a locally held secp256k1 secret key.
type KeySigner struct {
	privateKey *btcec.PrivateKey
	publicKey  string
}

// NewKeySigner builds a signer from a hex encoded secret key.
func NewKeySigner(secretHex string) (*KeySigner, error) {
	keyBytes, err := hex.DecodeString(secretHex)
	if err != nil || len(keyBytes) != 32 {
		return nil, ErrInvalidKey
	}
	privateKey, _ := btcec.PrivKeyFromBytes(keyBytes)
	return newKeySigner(privateKey), nil
}

// GenerateKeySigner creates a signer with a fresh random key.
func GenerateKeySigner() (*KeySigner, error) {
	privateKey, err := btcec.NewPrivateKey()
	if err != nil {
		return nil, fmt.Errorf("generate key: %w", err)
	}
	return newKeySigner(privateKey), nil
}

func newKeySigner(privateKey *btcec.PrivateKey) *KeySigner {
	// x-only pubkey: drop the 02/03 prefix
	pubKeyBytes := privateKey.PubKey().SerializeCompressed()[1:]
	return &KeySigner{
		privateKey: privateKey,
		publicKey:  hex.EncodeToString(pubKeyBytes),
	}
}

// PublicKey returns the x-only public key as hex.
func (s *KeySigner) PublicKey() string {
	return s.publicKey
}

// SecretKey returns the secret key as hex.
func (s *KeySigner) SecretKey() string {
	return hex.EncodeToString(s.privateKey.Serialize())
}

// Sign signs a hex event id.
func (s *KeySigner) Sign(id string) (string, error) {
	idBytes, err := hex.DecodeString(id)
	if err != nil {
		return "", fmt.Errorf("invalid event id hex: %w", err)
	}
	sig, err := schnorr.Sign(s.privateKey, idBytes)
	if err != nil {
		return "", fmt.Errorf("sign event: %w", err)
	}
	return hex.EncodeToString(sig.Serialize()), nil
}

// Finalize fills in id and signature of an unsigned event.
func Finalize(evt *types.Event, signer Signer) error {
	evt.PubKey = signer.PublicKey()
	if evt.Tags == nil {
		evt.Tags = [][]string{}
	}
	evt.ID = ComputeID(evt)
	sig, err := signer.Sign(evt.ID)
	if err != nil {
		return err
	}
	evt.Sig = sig
	return nil
}
