package market

import (
	"encoding/binary"
	"fmt"
)

// HeaderSize 市场账户头部的固定长度（小端）。
//
//	0  discriminant                     u64
//	8  base decimals                    u32
//	12 quote decimals                   u32
//	16 base lot size                    u64
//	24 quote lot size                   u64
//	32 tick size in quote atoms/unit    u64
//	40 raw base units per base unit     u32
//	44 reserved                         u32
//	48 base lots per base unit          u64
//	56 reserved                         [24]byte
const HeaderSize = 80

// DecodeHeader 从原始字节解析 Facts。长度不足或常量不一致属于反序列化失败，
// 魔数不对属于非法市场。
func DecodeHeader(data []byte) (Facts, error) {
	var f Facts
	if len(data) < HeaderSize {
		return f, fmt.Errorf("%w: header has %d bytes, want %d", ErrMarketDeserializationFailed, len(data), HeaderSize)
	}
	le := binary.LittleEndian
	f.Discriminant = le.Uint64(data[0:8])
	if f.Discriminant != ExpectedDiscriminant {
		return f, fmt.Errorf("%w: discriminant %d", ErrInvalidMarket, f.Discriminant)
	}
	f.BaseDecimals = le.Uint32(data[8:12])
	f.QuoteDecimals = le.Uint32(data[12:16])
	f.BaseLotSize = le.Uint64(data[16:24])
	f.QuoteLotSize = le.Uint64(data[24:32])
	tickAtoms := le.Uint64(data[32:40])
	f.RawBaseUnitsPerBaseUnit = uint64(le.Uint32(data[40:44]))
	f.BaseLotsPerBaseUnit = le.Uint64(data[48:56])

	if f.QuoteLotSize == 0 || tickAtoms%f.QuoteLotSize != 0 {
		return f, fmt.Errorf("%w: tick size %d not a multiple of quote lot size %d",
			ErrMarketDeserializationFailed, tickAtoms, f.QuoteLotSize)
	}
	f.TickSizeInQuoteLotsPerBaseUnit = tickAtoms / f.QuoteLotSize
	if err := f.Validate(); err != nil {
		return f, err
	}
	return f, nil
}

// EncodeHeader DecodeHeader 的逆过程，模拟盘和测试使用。
func EncodeHeader(f Facts) []byte {
	buf := make([]byte, HeaderSize)
	le := binary.LittleEndian
	le.PutUint64(buf[0:8], f.Discriminant)
	le.PutUint32(buf[8:12], f.BaseDecimals)
	le.PutUint32(buf[12:16], f.QuoteDecimals)
	le.PutUint64(buf[16:24], f.BaseLotSize)
	le.PutUint64(buf[24:32], f.QuoteLotSize)
	le.PutUint64(buf[32:40], f.TickSizeInQuoteAtomsPerBaseUnit())
	le.PutUint32(buf[40:44], uint32(f.RawBaseUnitsPerBaseUnit))
	le.PutUint64(buf[48:56], f.BaseLotsPerBaseUnit)
	return buf
}

// Account 市场账户：所有者 + 原始数据。
type Account struct {
	Owner Address
	Data  []byte
}

// LoadFacts 校验账户所有者后解析头部。
func LoadFacts(acc Account, expectedOwner Address) (Facts, error) {
	if acc.Owner != expectedOwner {
		return Facts{}, fmt.Errorf("%w: owner %s, want %s", ErrInvalidMarket, acc.Owner, expectedOwner)
	}
	return DecodeHeader(acc.Data)
}
