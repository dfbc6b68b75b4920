// Package signing produces and verifies EIP-712 signatures over order terms.
// The signature binds the maker to the exact terms; any field change
// invalidates it.
package signing

import (
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"

	"zenmode/internal/domain"
)

// Domain is the EIP-712 domain separator, scoping signatures to one protocol
// deployment on one chain.
type Domain struct {
	Name              string
	Version           string
	ChainID           *big.Int
	VerifyingContract common.Address
}

// NewDomain builds the signing domain for a protocol deployment
func NewDomain(chainID int64, verifyingContract string) Domain {
	return Domain{
		Name:              "ZenMode",
		Version:           "1",
		ChainID:           big.NewInt(chainID),
		VerifyingContract: common.HexToAddress(verifyingContract),
	}
}

// LocalSigner signs order terms with an in-process secp256k1 key
type LocalSigner struct {
	privateKey *ecdsa.PrivateKey
	address    common.Address
	domain     Domain
}

// NewLocalSigner creates a signer from a hex-encoded private key.
// Accepts the key with or without a 0x prefix.
func NewLocalSigner(hexKey string, domain Domain) (*LocalSigner, error) {
	privateKey, err := crypto.HexToECDSA(strings.TrimPrefix(hexKey, "0x"))
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key: %w", err)
	}

	publicKey, ok := privateKey.Public().(*ecdsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("failed to cast public key to ECDSA")
	}

	return &LocalSigner{
		privateKey: privateKey,
		address:    crypto.PubkeyToAddress(*publicKey),
		domain:     domain,
	}, nil
}

// Address returns the maker address derived from the signing key
func (s *LocalSigner) Address() string {
	return s.address.Hex()
}

// Sign hashes the terms per EIP-712 and signs the digest.
// Returns the signature in [R || S || V] format (65 bytes).
func (s *LocalSigner) Sign(terms domain.OrderTerms) ([]byte, error) {
	digest, err := HashTerms(s.domain, terms)
	if err != nil {
		return nil, fmt.Errorf("failed to hash order terms: %w", err)
	}

	signature, err := crypto.Sign(digest, s.privateKey)
	if err != nil {
		return nil, fmt.Errorf("failed to sign order terms: %w", err)
	}
	return signature, nil
}

// HashTerms computes the EIP-712 digest of the order terms
func HashTerms(d Domain, terms domain.OrderTerms) ([]byte, error) {
	typedData := apitypes.TypedData{
		Types: apitypes.Types{
			"EIP712Domain": []apitypes.Type{
				{Name: "name", Type: "string"},
				{Name: "version", Type: "string"},
				{Name: "chainId", Type: "uint256"},
				{Name: "verifyingContract", Type: "address"},
			},
			"Order": []apitypes.Type{
				{Name: "maker", Type: "address"},
				{Name: "makerAsset", Type: "address"},
				{Name: "takerAsset", Type: "address"},
				{Name: "makingAmount", Type: "uint256"},
				{Name: "takingAmount", Type: "uint256"},
				{Name: "nonce", Type: "uint256"},
				{Name: "expiresAt", Type: "uint256"},
			},
		},
		PrimaryType: "Order",
		Domain: apitypes.TypedDataDomain{
			Name:              d.Name,
			Version:           d.Version,
			ChainId:           (*math.HexOrDecimal256)(d.ChainID),
			VerifyingContract: d.VerifyingContract.Hex(),
		},
		Message: apitypes.TypedDataMessage{
			"maker":        common.HexToAddress(terms.Maker).Hex(),
			"makerAsset":   common.HexToAddress(terms.MakerAsset).Hex(),
			"takerAsset":   common.HexToAddress(terms.TakerAsset).Hex(),
			"makingAmount": terms.MakingAmount.String(),
			"takingAmount": terms.TakingAmount.String(),
			"nonce":        new(big.Int).SetUint64(terms.Nonce).String(),
			"expiresAt":    big.NewInt(terms.ExpiresAt).String(),
		},
	}

	domainSeparator, err := typedData.HashStruct("EIP712Domain", typedData.Domain.Map())
	if err != nil {
		return nil, fmt.Errorf("failed to hash domain: %w", err)
	}

	typedDataHash, err := typedData.HashStruct(typedData.PrimaryType, typedData.Message)
	if err != nil {
		return nil, fmt.Errorf("failed to hash message: %w", err)
	}

	// keccak256("\x19\x01" || domainSeparator || typedDataHash)
	rawData := []byte(fmt.Sprintf("\x19\x01%s%s", string(domainSeparator), string(typedDataHash)))
	return crypto.Keccak256Hash(rawData).Bytes(), nil
}

// RecoverSigner recovers the address that signed the given terms
func RecoverSigner(d Domain, terms domain.OrderTerms, signature []byte) (string, error) {
	if len(signature) != 65 {
		return "", fmt.Errorf("invalid signature length: %d", len(signature))
	}

	digest, err := HashTerms(d, terms)
	if err != nil {
		return "", err
	}

	publicKeyBytes, err := crypto.Ecrecover(digest, signature)
	if err != nil {
		return "", fmt.Errorf("failed to recover public key: %w", err)
	}

	publicKey, err := crypto.UnmarshalPubkey(publicKeyBytes)
	if err != nil {
		return "", fmt.Errorf("failed to unmarshal public key: %w", err)
	}

	return crypto.PubkeyToAddress(*publicKey).Hex(), nil
}

// Verify reports whether signature over terms was produced by maker
func Verify(d Domain, terms domain.OrderTerms, signature []byte, maker string) bool {
	recovered, err := RecoverSigner(d, terms, signature)
	if err != nil {
		return false
	}
	return recovered == common.HexToAddress(maker).Hex()
}
