package signer

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

var ErrBadSignature = errors.New("signature does not match caller")

// Signer produces caller signatures. Clients and tests use it; the server
// only verifies.
type Signer struct {
	key             *ecdsa.PrivateKey
	address         common.Address
	domainSeparator common.Hash
}

func NewSigner(privateKeyHex string, chainID int64) (*Signer, error) {
	if privateKeyHex == "" {
		return nil, fmt.Errorf("private key is required")
	}
	key, err := crypto.HexToECDSA(privateKeyHex)
	if err != nil {
		return nil, fmt.Errorf("invalid private key: %v", err)
	}
	return &Signer{
		key:             key,
		address:         crypto.PubkeyToAddress(key.PublicKey),
		domainSeparator: DomainSeparator(chainID),
	}, nil
}

// SignRequest signs r and returns the 65-byte [R || S || V] signature as hex,
// with V in the 27/28 form wallets produce.
func (s *Signer) SignRequest(r *CallerRequest) (string, error) {
	signature, err := crypto.Sign(TypedHash(s.domainSeparator, r), s.key)
	if err != nil {
		return "", err
	}
	signature[64] += 27
	return hexutil.Encode(signature), nil
}

func (s *Signer) Address() common.Address {
	return s.address
}

// Verifier checks caller signatures for one chain id. Externally owned
// accounts are checked by key recovery; with a ContractVerifier, smart
// wallets are asked through EIP-1271.
type Verifier struct {
	domainSeparator common.Hash
	contracts       *ContractVerifier
}

func NewVerifier(chainID int64, contracts *ContractVerifier) *Verifier {
	return &Verifier{domainSeparator: DomainSeparator(chainID), contracts: contracts}
}

// Verify reports whether sigHex over r was produced by r.Caller.
func (v *Verifier) Verify(ctx context.Context, r *CallerRequest, sigHex string) error {
	sig, err := hexutil.Decode(sigHex)
	if err != nil {
		return fmt.Errorf("decode signature: %w", err)
	}
	hash := TypedHash(v.domainSeparator, r)
	if recoverAddress(hash, sig) == r.Caller {
		return nil
	}
	if v.contracts == nil {
		return ErrBadSignature
	}
	ok, err := v.contracts.Verify(ctx, r.Caller, hash, sig)
	if err != nil {
		return fmt.Errorf("contract wallet check: %w", err)
	}
	if !ok {
		return ErrBadSignature
	}
	return nil
}

// recoverAddress returns the zero address when sig is not a valid ECDSA
// signature over hash.
func recoverAddress(hash, sig []byte) common.Address {
	if len(sig) != crypto.SignatureLength {
		return common.Address{}
	}
	rsv := make([]byte, len(sig))
	copy(rsv, sig)
	// accept both 0/1 and 27/28 recovery ids
	if rsv[64] >= 27 {
		rsv[64] -= 27
	}
	pub, err := crypto.SigToPub(hash, rsv)
	if err != nil {
		return common.Address{}
	}
	return crypto.PubkeyToAddress(*pub)
}
