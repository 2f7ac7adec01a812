package strategy

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// ErrInvalidBehavior 未知的价格改善策略编码。
var ErrInvalidBehavior = errors.New("invalid price improvement behavior")

// PriceImprovementBehavior 决定报价相对盘口最优价的激进程度。
// 数值编码固定为 0-3，持久化和配置都依赖这个映射。
type PriceImprovementBehavior uint8

const (
	Ubermensch PriceImprovementBehavior = 0
	Join       PriceImprovementBehavior = 1
	Dime       PriceImprovementBehavior = 2
	Ignore     PriceImprovementBehavior = 3
)

var behaviorNames = map[PriceImprovementBehavior]string{
	Ubermensch: "ubermensch",
	Join:       "join",
	Dime:       "dime",
	Ignore:     "ignore",
}

// ParseBehavior 从线上字节解码，超出 0-3 直接报错而不是回落到默认值。
func ParseBehavior(b uint8) (PriceImprovementBehavior, error) {
	v := PriceImprovementBehavior(b)
	if _, ok := behaviorNames[v]; !ok {
		return 0, fmt.Errorf("%w: %d", ErrInvalidBehavior, b)
	}
	return v, nil
}

// ParseBehaviorName 接受名称（大小写不敏感）或数字编码。
func ParseBehaviorName(s string) (PriceImprovementBehavior, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for v, name := range behaviorNames {
		if name == s {
			return v, nil
		}
	}
	n, err := strconv.ParseUint(s, 10, 8)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidBehavior, s)
	}
	return ParseBehavior(uint8(n))
}

func (b PriceImprovementBehavior) Uint8() uint8 { return uint8(b) }

func (b PriceImprovementBehavior) Valid() bool {
	_, ok := behaviorNames[b]
	return ok
}

func (b PriceImprovementBehavior) String() string {
	if name, ok := behaviorNames[b]; ok {
		return name
	}
	return "unknown(" + strconv.Itoa(int(b)) + ")"
}

// UnmarshalYAML 配置里既可以写 "join" 也可以写 1。
func (b *PriceImprovementBehavior) UnmarshalYAML(node *yaml.Node) error {
	v, err := ParseBehaviorName(node.Value)
	if err != nil {
		return err
	}
	*b = v
	return nil
}

func (b PriceImprovementBehavior) MarshalYAML() (interface{}, error) {
	return b.String(), nil
}

// UnmarshalText 供环境变量覆盖使用。
func (b *PriceImprovementBehavior) UnmarshalText(text []byte) error {
	v, err := ParseBehaviorName(string(text))
	if err != nil {
		return err
	}
	*b = v
	return nil
}
