package oracle

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func trading(price int64, conf uint64, valid uint64) Reading {
	return Reading{FeedID: "SOL/USD", Price: price, Confidence: conf, Status: StatusTrading, Exponent: -8, ValidHeight: valid}
}

func TestValidate(t *testing.T) {
	const height = 1_000

	testCases := []struct {
		name    string
		reading Reading
		wantErr error
	}{
		{name: "正常读数", reading: trading(1_000, 99, height)},
		{name: "置信区间恰好 10%", reading: trading(1_000, 100, height)},
		{name: "置信区间 price/10+1", reading: trading(1_000, 1_000/10+1, height), wantErr: ErrLowConfidence},
		{name: "置信区间乘 10 溢出", reading: trading(1_000, 1<<63, height), wantErr: ErrLowConfidence},
		{name: "恰好过期", reading: trading(1_000, 1, height-50), wantErr: ErrStaleFeed},
		{name: "差一个高度未过期", reading: trading(1_000, 1, height-49)},
		{name: "有效高度在未来", reading: trading(1_000, 1, height+5)},
		{name: "指数 -18", reading: Reading{Price: 10, Status: StatusTrading, Exponent: -18, ValidHeight: height}},
		{name: "指数 18", reading: Reading{Price: 10, Status: StatusTrading, Exponent: 18, ValidHeight: height}},
		{name: "指数 -19", reading: Reading{Price: 10, Status: StatusTrading, Exponent: -19, ValidHeight: height}, wantErr: ErrBadExponent},
		{name: "指数 19", reading: Reading{Price: 10, Status: StatusTrading, Exponent: 19, ValidHeight: height}, wantErr: ErrBadExponent},
		{name: "极端负指数", reading: Reading{Price: 10, Status: StatusTrading, Exponent: -200_000_000, ValidHeight: height}, wantErr: ErrBadExponent},
		{name: "负价格", reading: trading(-5, 0, height), wantErr: ErrNegativePrice},
		{name: "零价格", reading: trading(0, 0, height), wantErr: ErrNegativePrice},
		{
			name:    "停牌时无视价格和置信区间",
			reading: Reading{Price: -1, Confidence: 1 << 40, Status: StatusHalted, ValidHeight: height},
			wantErr: ErrFeedNotTrading,
		},
		{name: "竞价状态", reading: Reading{Price: 10, Status: StatusAuction, ValidHeight: height}, wantErr: ErrFeedNotTrading},
		{name: "未知状态", reading: Reading{Price: 10, Status: StatusUnknown, ValidHeight: height}, wantErr: ErrFeedNotTrading},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			p, err := Validate(tc.reading, height)
			if tc.wantErr != nil {
				require.ErrorIs(t, err, tc.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, TrustedPrice{Price: tc.reading.Price, Exponent: tc.reading.Exponent}, p)
		})
	}
}

func TestValidatorCustomWindow(t *testing.T) {
	v := NewValidator(10)
	_, err := v.Validate(trading(100, 1, 90), 100)
	assert.ErrorIs(t, err, ErrStaleFeed)

	_, err = v.Validate(trading(100, 1, 91), 100)
	assert.NoError(t, err)

	assert.Equal(t, DefaultMaxStaleness, NewValidator(0).MaxStaleness)
}

func TestNormalize(t *testing.T) {
	assert.Equal(t, "123450000000000", Normalize(TrustedPrice{Price: 12345, Exponent: -2}).String())
	assert.Equal(t, "1234500000000000000", Normalize(TrustedPrice{Price: 12345, Exponent: 2}).String())
	assert.Equal(t, "0", Normalize(TrustedPrice{Price: 5, Exponent: -13}).String())
	// 越界指数按边界计算，不做巨型幂运算
	assert.Equal(t, "0", Normalize(TrustedPrice{Price: 5, Exponent: -200_000_000}).String())
	assert.Equal(t, Normalize(TrustedPrice{Price: 1, Exponent: 18}), Normalize(TrustedPrice{Price: 1, Exponent: 1 << 30}))
}

func TestStatusString(t *testing.T) {
	assert.Equal(t, "trading", StatusTrading.String())
	assert.Equal(t, "status(9)", Status(9).String())
}
