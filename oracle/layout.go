package oracle

import (
	"encoding/binary"
	"fmt"
)

// 价格账户固定二进制布局（小端）中用到的字段。
const (
	Magic            uint32 = 0xa1b2c3d4
	Version          uint32 = 2
	AccountTypePrice uint32 = 3

	offMagic     = 0
	offVersion   = 4
	offAtype     = 8
	offSize      = 12
	offExpo      = 20
	offValidSlot = 40
	offAggPrice  = 208
	offAggConf   = 216
	offAggStatus = 224

	// MinAccountSize 至少要覆盖聚合价字段。
	MinAccountSize = 240
)

// DecodeAccount 先校验长度/魔数/版本/类型，再读取字段；字段值此时仍未受信任，
// 需要经过 Validator。
func DecodeAccount(feedID string, data []byte) (Reading, error) {
	if len(data) < MinAccountSize {
		return Reading{}, fmt.Errorf("%w: feed %s has %d bytes, want >= %d", ErrInvalidFeedLayout, feedID, len(data), MinAccountSize)
	}
	le := binary.LittleEndian
	if m := le.Uint32(data[offMagic:]); m != Magic {
		return Reading{}, fmt.Errorf("%w: feed %s magic %#x", ErrInvalidFeedLayout, feedID, m)
	}
	if v := le.Uint32(data[offVersion:]); v != Version {
		return Reading{}, fmt.Errorf("%w: feed %s version %d", ErrInvalidFeedLayout, feedID, v)
	}
	if t := le.Uint32(data[offAtype:]); t != AccountTypePrice {
		return Reading{}, fmt.Errorf("%w: feed %s account type %d", ErrInvalidFeedLayout, feedID, t)
	}
	if size := le.Uint32(data[offSize:]); size != 0 && int(size) > len(data) {
		return Reading{}, fmt.Errorf("%w: feed %s declares %d bytes, has %d", ErrInvalidFeedLayout, feedID, size, len(data))
	}
	return Reading{
		FeedID:      feedID,
		Exponent:    int32(le.Uint32(data[offExpo:])),
		ValidHeight: le.Uint64(data[offValidSlot:]),
		Price:       int64(le.Uint64(data[offAggPrice:])),
		Confidence:  le.Uint64(data[offAggConf:]),
		Status:      Status(le.Uint32(data[offAggStatus:])),
	}, nil
}

// EncodeAccount DecodeAccount 的逆过程，测试和离线工具使用。
func EncodeAccount(r Reading) []byte {
	buf := make([]byte, MinAccountSize)
	le := binary.LittleEndian
	le.PutUint32(buf[offMagic:], Magic)
	le.PutUint32(buf[offVersion:], Version)
	le.PutUint32(buf[offAtype:], AccountTypePrice)
	le.PutUint32(buf[offSize:], MinAccountSize)
	le.PutUint32(buf[offExpo:], uint32(r.Exponent))
	le.PutUint64(buf[offValidSlot:], r.ValidHeight)
	le.PutUint64(buf[offAggPrice:], uint64(r.Price))
	le.PutUint64(buf[offAggConf:], r.Confidence)
	le.PutUint32(buf[offAggStatus:], uint32(r.Status))
	return buf
}
