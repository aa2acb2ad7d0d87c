package service

import (
	"crypto/ed25519"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"custodial-wallet-engine/internal/core/ports"
	"custodial-wallet-engine/pkg/apperror"

	"github.com/gagliardetto/solana-go"
)

// CustodyService implements ports.KeyCustody. Keys are serialized as base58 and
// sealed with the encryption service before they reach the repository.
type CustodyService struct {
	enc ports.EncryptionService
}

func NewCustodyService(enc ports.EncryptionService) *CustodyService {
	return &CustodyService{enc: enc}
}

// Generate returns a fresh ed25519 keypair.
func (s *CustodyService) Generate() (solana.PrivateKey, error) {
	key, err := solana.NewRandomPrivateKey()
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("generate keypair: %w", err))
	}
	return key, nil
}

func (s *CustodyService) Seal(key solana.PrivateKey) (string, error) {
	sealed, err := s.enc.Encrypt(SerializeKey(key))
	if err != nil {
		return "", apperror.ErrEncryptionFailure(fmt.Errorf("seal key: %w", err))
	}
	return sealed, nil
}

func (s *CustodyService) Open(sealed string) (solana.PrivateKey, error) {
	secret, err := s.enc.Decrypt(sealed)
	if err != nil {
		return nil, apperror.ErrKeyFormat(fmt.Errorf("open key: %w", err))
	}
	return DeserializeKey(secret)
}

// ExportHex returns the 64 raw key bytes as lowercase hex.
func (s *CustodyService) ExportHex(sealed string) (string, error) {
	key, err := s.Open(sealed)
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(key), nil
}

// SerializeKey encodes the 64-byte secret as base58.
func SerializeKey(key solana.PrivateKey) string {
	return key.String()
}

// DeserializeKey parses a serialized secret. Besides base58 it accepts the JSON
// byte array form ("[12,34,...]") older wallets were stored in.
func DeserializeKey(secret string) (solana.PrivateKey, error) {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return nil, apperror.ErrKeyFormat(errors.New("empty secret"))
	}

	var raw []byte
	if strings.HasPrefix(secret, "[") {
		var ints []int
		if err := json.Unmarshal([]byte(secret), &ints); err != nil {
			return nil, apperror.ErrKeyFormat(fmt.Errorf("decode byte array: %w", err))
		}
		raw = make([]byte, len(ints))
		for i, v := range ints {
			if v < 0 || v > 255 {
				return nil, apperror.ErrKeyFormat(fmt.Errorf("byte %d out of range: %d", i, v))
			}
			raw[i] = byte(v)
		}
	} else {
		key, err := solana.PrivateKeyFromBase58(secret)
		if err != nil {
			return nil, apperror.ErrKeyFormat(fmt.Errorf("decode base58: %w", err))
		}
		raw = key
	}

	if len(raw) != ed25519.PrivateKeySize {
		return nil, apperror.ErrKeyFormat(fmt.Errorf("key is %d bytes, want %d", len(raw), ed25519.PrivateKeySize))
	}
	derived := ed25519.NewKeyFromSeed(raw[:ed25519.SeedSize])
	if !ed25519.PrivateKey(raw).Equal(derived) {
		return nil, apperror.ErrKeyFormat(errors.New("public half does not match seed"))
	}
	return solana.PrivateKey(raw), nil
}
