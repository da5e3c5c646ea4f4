package signer

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
)

const (
	EIP712DomainName    = "Crowdgate"
	EIP712DomainVersion = "1"
)

var (
	// keccak256("EIP712Domain(string name,string version,uint256 chainId)")
	EIP712DomainTypeHash = crypto.Keccak256Hash([]byte("EIP712Domain(string name,string version,uint256 chainId)"))

	// keccak256("CallerRequest(address caller,string method,string path,bytes32 bodyHash,uint256 timestamp)")
	CallerRequestTypeHash = crypto.Keccak256Hash([]byte("CallerRequest(address caller,string method,string path,bytes32 bodyHash,uint256 timestamp)"))
)

// CallerRequest is the typed payload a caller signs to prove it controls the
// address it acts as.
type CallerRequest struct {
	Caller    common.Address
	Method    string
	Path      string
	Body      []byte
	Timestamp int64
}

// DomainSeparator is keccak256(abi.encode(typeHash, keccak256(name), keccak256(version), chainId)).
func DomainSeparator(chainID int64) common.Hash {
	// all fields are 32 bytes
	domainData := make([]byte, 32*4)
	copy(domainData[0:32], EIP712DomainTypeHash.Bytes())
	copy(domainData[32:64], crypto.Keccak256([]byte(EIP712DomainName)))
	copy(domainData[64:96], crypto.Keccak256([]byte(EIP712DomainVersion)))
	copy(domainData[96:128], math.U256Bytes(big.NewInt(chainID)))
	return crypto.Keccak256Hash(domainData)
}

// hashStruct is keccak256(abi.encode(typeHash, caller, keccak256(method), keccak256(path), bodyHash, timestamp)).
func (r *CallerRequest) hashStruct() []byte {
	data := make([]byte, 32*6)
	copy(data[0:32], CallerRequestTypeHash.Bytes())
	copy(data[32+12:64], r.Caller.Bytes())
	copy(data[64:96], crypto.Keccak256([]byte(r.Method)))
	copy(data[96:128], crypto.Keccak256([]byte(r.Path)))
	copy(data[128:160], crypto.Keccak256(r.Body))
	copy(data[160:192], math.U256Bytes(big.NewInt(r.Timestamp)))
	return crypto.Keccak256(data)
}

// TypedHash is keccak256("\x19\x01" || domainSeparator || hashStruct).
func TypedHash(domain common.Hash, r *CallerRequest) []byte {
	return crypto.Keccak256([]byte{0x19, 0x01}, domain.Bytes(), r.hashStruct())
}
