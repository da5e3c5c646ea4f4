package signer

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/ethclient"
)

// isValidSignature(bytes32,bytes) selector
const eip1271MagicValue = "0x1626ba7e"

var eip1271ABI = mustParseABI(`[{"constant":true,"inputs":[{"name":"_hash","type":"bytes32"},{"name":"_signature","type":"bytes"}],"name":"isValidSignature","outputs":[{"name":"magicValue","type":"bytes4"}],"payable":false,"stateMutability":"view","type":"function"}]`)

func mustParseABI(raw string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		panic(err)
	}
	return parsed
}

// ContractVerifier asks a smart-contract wallet whether it accepts a
// signature (EIP-1271). Answers are cached for a short while.
type ContractVerifier struct {
	rpcURL   string
	mu       sync.Mutex
	caller   ethereum.ContractCaller
	cacheTTL time.Duration
	cache    map[string]cacheEntry
	timeout  time.Duration
	retries  int
}

type cacheEntry struct {
	valid   bool
	expires time.Time
}

func NewContractVerifier(rpcURL string, ttl time.Duration, timeout time.Duration, retries int) *ContractVerifier {
	if ttl <= 0 {
		ttl = 60 * time.Second
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	if retries < 0 {
		retries = 0
	}
	return &ContractVerifier{
		rpcURL:   strings.TrimSpace(rpcURL),
		cacheTTL: ttl,
		cache:    make(map[string]cacheEntry),
		timeout:  timeout,
		retries:  retries,
	}
}

func (v *ContractVerifier) Verify(ctx context.Context, contract common.Address, hash []byte, sig []byte) (bool, error) {
	if len(hash) != 32 {
		return false, fmt.Errorf("invalid hash length")
	}
	cacheKey := v.cacheKey(contract, hash, sig)
	if hit, ok := v.cacheGet(cacheKey); ok {
		return hit, nil
	}

	data, err := eip1271ABI.Pack("isValidSignature", [32]byte(hash), sig)
	if err != nil {
		return false, fmt.Errorf("failed to pack call data: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt <= v.retries; attempt++ {
		attemptCtx, cancel := context.WithTimeout(ctx, v.timeout)
		caller, err := v.getCaller(attemptCtx)
		if err != nil {
			cancel()
			lastErr = err
			if !shouldRetry(ctx, attempt, v.retries) {
				break
			}
			continue
		}

		output, err := caller.CallContract(attemptCtx, ethereum.CallMsg{To: &contract, Data: data}, nil)
		cancel()
		if err != nil {
			lastErr = fmt.Errorf("rpc call failed: %w", err)
			if !shouldRetry(ctx, attempt, v.retries) {
				break
			}
			continue
		}
		valid := len(output) >= 4 && strings.EqualFold(hexutil.Encode(output[:4]), eip1271MagicValue)
		v.cacheSet(cacheKey, valid)
		return valid, nil
	}
	return false, lastErr
}

func (v *ContractVerifier) getCaller(ctx context.Context) (ethereum.ContractCaller, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.caller != nil {
		return v.caller, nil
	}
	if v.rpcURL == "" {
		return nil, fmt.Errorf("rpc url not configured")
	}
	client, err := ethclient.DialContext(ctx, v.rpcURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect rpc: %w", err)
	}
	v.caller = client
	return v.caller, nil
}

func (v *ContractVerifier) cacheKey(contract common.Address, hash []byte, sig []byte) string {
	return contract.Hex() + ":" + hexutil.Encode(hash) + ":" + hexutil.Encode(sig)
}

func (v *ContractVerifier) cacheGet(key string) (bool, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	entry, ok := v.cache[key]
	if !ok {
		return false, false
	}
	if time.Now().After(entry.expires) {
		delete(v.cache, key)
		return false, false
	}
	return entry.valid, true
}

func (v *ContractVerifier) cacheSet(key string, valid bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.cache[key] = cacheEntry{
		valid:   valid,
		expires: time.Now().Add(v.cacheTTL),
	}
}

func shouldRetry(ctx context.Context, attempt, max int) bool {
	if attempt >= max {
		return false
	}
	select {
	case <-ctx.Done():
		return false
	case <-time.After(time.Duration(attempt+1) * 200 * time.Millisecond):
		return true
	}
}
