package signer

import (
	"context"
	"errors"
	"math/big"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeWallet struct {
	calls   atomic.Int32
	fails   int32
	accepts bool
}

func (f *fakeWallet) CallContract(_ context.Context, msg ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	n := f.calls.Add(1)
	if n <= f.fails {
		return nil, errors.New("connection reset")
	}
	out := make([]byte, 32)
	if f.accepts {
		copy(out, hexutil.MustDecode(eip1271MagicValue))
	}
	return out, nil
}

func newTestContractVerifier(w *fakeWallet, retries int) *ContractVerifier {
	cv := NewContractVerifier("", time.Minute, time.Second, retries)
	cv.caller = w
	return cv
}

var wallet = common.HexToAddress("0x00000000000000000000000000000000000000aa")

func TestContractVerifier_MagicValue(t *testing.T) {
	ctx := context.Background()
	hash := make([]byte, 32)

	ok, err := newTestContractVerifier(&fakeWallet{accepts: true}, 0).Verify(ctx, wallet, hash, []byte{1})
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = newTestContractVerifier(&fakeWallet{}, 0).Verify(ctx, wallet, hash, []byte{1})
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = newTestContractVerifier(&fakeWallet{}, 0).Verify(ctx, wallet, []byte{1}, nil)
	assert.Error(t, err)
}

func TestContractVerifier_CachesAndRetries(t *testing.T) {
	ctx := context.Background()
	hash := make([]byte, 32)
	w := &fakeWallet{accepts: true, fails: 1}
	cv := newTestContractVerifier(w, 1)

	ok, err := cv.Verify(ctx, wallet, hash, []byte{1})
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int32(2), w.calls.Load())

	ok, err = cv.Verify(ctx, wallet, hash, []byte{1})
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int32(2), w.calls.Load(), "second answer comes from cache")

	down := newTestContractVerifier(&fakeWallet{fails: 10}, 0)
	_, err = down.Verify(ctx, wallet, hash, []byte{1})
	assert.Error(t, err)
}

func TestContractVerifier_NoRPC(t *testing.T) {
	cv := NewContractVerifier("", 0, 0, 0)
	_, err := cv.Verify(context.Background(), wallet, make([]byte, 32), []byte{1})
	assert.Error(t, err)
}

func TestVerifier_ContractWalletFallback(t *testing.T) {
	ctx := context.Background()
	req := testRequest(wallet)
	sig := hexutil.Encode(make([]byte, 65))

	assert.ErrorIs(t, NewVerifier(1, nil).Verify(ctx, req, sig), ErrBadSignature)

	accepting := NewVerifier(1, newTestContractVerifier(&fakeWallet{accepts: true}, 0))
	assert.NoError(t, accepting.Verify(ctx, req, sig))

	rejecting := NewVerifier(1, newTestContractVerifier(&fakeWallet{}, 0))
	assert.ErrorIs(t, rejecting.Verify(ctx, req, sig), ErrBadSignature)
}
