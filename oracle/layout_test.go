package oracle

import (
	"context"
	"encoding/binary"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeAccountRoundTrip(t *testing.T) {
	in := Reading{FeedID: "BTC/USD", Price: 6_512_345_000_000, Confidence: 1_200_000, Status: StatusTrading, Exponent: -8, ValidHeight: 777}
	out, err := DecodeAccount("BTC/USD", EncodeAccount(in))
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestDecodeAccountRejectsBadLayout(t *testing.T) {
	good := EncodeAccount(trading(1, 0, 1))

	corrupt := func(off int, v uint32) []byte {
		b := append([]byte(nil), good...)
		binary.LittleEndian.PutUint32(b[off:], v)
		return b
	}

	testCases := []struct {
		name string
		data []byte
	}{
		{name: "长度不足", data: good[:MinAccountSize-1]},
		{name: "魔数错误", data: corrupt(offMagic, 0xdeadbeef)},
		{name: "版本错误", data: corrupt(offVersion, 1)},
		{name: "账户类型错误", data: corrupt(offAtype, 2)},
		{name: "声明长度超出", data: corrupt(offSize, MinAccountSize+8)},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := DecodeAccount("x", tc.data)
			assert.ErrorIs(t, err, ErrInvalidFeedLayout)
		})
	}
}

func TestAccountSource(t *testing.T) {
	r := trading(42, 1, 10)
	src := AccountSource{Fetch: func(_ context.Context, id string) ([]byte, error) {
		if id != r.FeedID {
			return nil, errors.New("not found")
		}
		return EncodeAccount(r), nil
	}}

	got, err := src.ReadPriceFeed(context.Background(), r.FeedID)
	require.NoError(t, err)
	assert.Equal(t, r, got)

	_, err = src.ReadPriceFeed(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrFeedUnavailable)
}

func TestDirFetcher(t *testing.T) {
	dir := t.TempDir()
	r := trading(42, 1, 10)
	assert.Equal(t, "SOL_USD.bin", AccountFileName(r.FeedID))
	require.NoError(t, os.WriteFile(filepath.Join(dir, AccountFileName(r.FeedID)), EncodeAccount(r), 0o644))

	src := AccountSource{Fetch: DirFetcher(dir)}
	got, err := src.ReadPriceFeed(context.Background(), r.FeedID)
	require.NoError(t, err)
	assert.Equal(t, r, got)

	_, err = src.ReadPriceFeed(context.Background(), "BTC/USD")
	assert.ErrorIs(t, err, ErrFeedUnavailable)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "ETH_USD.bin"), []byte{1, 2, 3}, 0o644))
	_, err = src.ReadPriceFeed(context.Background(), "ETH/USD")
	assert.ErrorIs(t, err, ErrInvalidFeedLayout)
}

func TestStaticSource(t *testing.T) {
	src := NewStaticSource(trading(10, 1, 5))
	got, err := src.ReadPriceFeed(context.Background(), "SOL/USD")
	require.NoError(t, err)
	assert.Equal(t, int64(10), got.Price)

	src.Set(trading(11, 1, 6))
	got, _ = src.ReadPriceFeed(context.Background(), "SOL/USD")
	assert.Equal(t, int64(11), got.Price)

	_, err = src.ReadPriceFeed(context.Background(), "ETH/USD")
	assert.ErrorIs(t, err, ErrFeedUnavailable)
}
