package main

import (
	"flag"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/shopspring/decimal"

	"quote-engine/market"
	"quote-engine/oracle"
	"quote-engine/strategy"
)

type options struct {
	baseFile     string
	quoteFile    string
	marketFile   string
	height       uint64
	maxStaleness uint64
}

func main() {
	var opts options
	flag.StringVar(&opts.baseFile, "base", "", "base 价格账户原始数据文件")
	flag.StringVar(&opts.quoteFile, "quote", "", "可选：quote 价格账户原始数据文件")
	flag.StringVar(&opts.marketFile, "market", "", "可选：市场账户头部文件，与 -quote 一起给出时计算公允价（tick）")
	flag.Uint64Var(&opts.height, "height", 0, "当前高度（用于新鲜度检查）")
	flag.Uint64Var(&opts.maxStaleness, "maxStaleness", oracle.DefaultMaxStaleness, "最大允许的高度差")
	flag.Parse()

	if opts.baseFile == "" {
		flag.Usage()
		os.Exit(2)
	}
	if err := run(os.Stdout, opts); err != nil {
		log.Fatalf("feedcheck: %v", err)
	}
}

func run(w io.Writer, opts options) error {
	v := oracle.NewValidator(opts.maxStaleness)
	base, err := check(w, v, "base", opts.baseFile, opts.height)
	if err != nil {
		return err
	}
	if opts.quoteFile == "" {
		return nil
	}
	quote, err := check(w, v, "quote", opts.quoteFile, opts.height)
	if err != nil {
		return err
	}
	if opts.marketFile == "" {
		return nil
	}
	raw, err := os.ReadFile(opts.marketFile)
	if err != nil {
		return err
	}
	facts, err := market.DecodeHeader(raw)
	if err != nil {
		return err
	}
	if err := facts.Validate(); err != nil {
		return err
	}
	fair, err := strategy.OracleFairPrice(base, quote, facts)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "fair: %d ticks (%s quote/base)\n", fair, facts.TicksToPrice(fair))
	return nil
}

// check 解码并校验一个价格账户；校验失败时仍打印原始字段。
func check(w io.Writer, v oracle.Validator, label, path string, height uint64) (oracle.TrustedPrice, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return oracle.TrustedPrice{}, err
	}
	r, err := oracle.DecodeAccount(path, raw)
	if err != nil {
		return oracle.TrustedPrice{}, err
	}
	fmt.Fprintf(w, "%s: price=%s conf=%s status=%s valid_height=%d\n",
		label,
		decimal.New(r.Price, r.Exponent),
		decimal.New(int64(r.Confidence), r.Exponent),
		r.Status, r.ValidHeight)
	p, err := v.Validate(r, height)
	if err != nil {
		fmt.Fprintf(w, "%s: rejected: %v\n", label, err)
		return oracle.TrustedPrice{}, fmt.Errorf("%s feed: %w", label, err)
	}
	norm := decimal.NewFromBigInt(oracle.Normalize(p), 0)
	fmt.Fprintf(w, "%s: accepted, normalized=%s\n", label, norm)
	return p, nil
}
