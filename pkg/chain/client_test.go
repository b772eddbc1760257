package chain

import (
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeHeaders serves a chain whose block n was mined at start + n*step.
type fakeHeaders struct {
	latest uint64
	start  uint64
	step   uint64
	calls  int
}

func (f *fakeHeaders) HeaderByNumber(_ context.Context, number *big.Int) (*types.Header, error) {
	f.calls++
	n := f.latest
	if number != nil {
		n = number.Uint64()
	}
	return &types.Header{
		Number: new(big.Int).SetUint64(n),
		Time:   f.start + n*f.step,
	}, nil
}

func TestFindBlockByTimestamp(t *testing.T) {
	src := &fakeHeaders{latest: 1_000_000, start: 1_600_000_000, step: 12}

	const want = 425_000
	got, err := findBlockByTimestamp(context.Background(), src, src.start+want*src.step)
	require.NoError(t, err)
	assert.Equal(t, uint64(want), got)
	assert.Less(t, src.calls, 40, "interpolation must converge in a handful of lookups")
}

func TestFindBlockByTimestampBounds(t *testing.T) {
	src := &fakeHeaders{latest: 1000, start: 1_600_000_000, step: 12}

	got, err := findBlockByTimestamp(context.Background(), src, src.start)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), got, "timestamps before the chain clamp to the first block")

	got, err = findBlockByTimestamp(context.Background(), src, src.start+src.latest*src.step+1000)
	require.NoError(t, err)
	assert.Equal(t, src.latest, got, "future timestamps clamp to the head")
}

func TestFindBlockByTimestampFlatChain(t *testing.T) {
	// Every header shares one timestamp; both sides of the search collapse
	// onto it without dividing through the zero span.
	src := &fakeHeaders{latest: 1000, start: 1_600_000_000, step: 0}

	got, err := findBlockByTimestamp(context.Background(), src, src.start+5)
	require.NoError(t, err)
	assert.Equal(t, src.latest, got)

	got, err = findBlockByTimestamp(context.Background(), src, src.start-5)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), got)
}
