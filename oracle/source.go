package oracle

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// Reader 按 feed id 读取一条未经校验的原始读数。
type Reader interface {
	ReadPriceFeed(ctx context.Context, feedID string) (Reading, error)
}

// StaticSource 固定读数，模拟盘和测试使用。
type StaticSource struct {
	mu       sync.RWMutex
	readings map[string]Reading
}

func NewStaticSource(readings ...Reading) *StaticSource {
	s := &StaticSource{readings: make(map[string]Reading, len(readings))}
	for _, r := range readings {
		s.readings[r.FeedID] = r
	}
	return s
}

// Set 覆盖某个 feed 的读数。
func (s *StaticSource) Set(r Reading) {
	s.mu.Lock()
	s.readings[r.FeedID] = r
	s.mu.Unlock()
}

func (s *StaticSource) ReadPriceFeed(_ context.Context, feedID string) (Reading, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.readings[feedID]
	if !ok {
		return Reading{}, fmt.Errorf("%w: %s", ErrFeedUnavailable, feedID)
	}
	return r, nil
}

// AccountFetcher 返回价格账户的原始字节。
type AccountFetcher func(ctx context.Context, feedID string) ([]byte, error)

// AccountSource 读取原始价格账户并按固定布局解码。
type AccountSource struct {
	Fetch AccountFetcher
}

func (s AccountSource) ReadPriceFeed(ctx context.Context, feedID string) (Reading, error) {
	if s.Fetch == nil {
		return Reading{}, fmt.Errorf("%w: no account fetcher", ErrFeedUnavailable)
	}
	data, err := s.Fetch(ctx, feedID)
	if err != nil {
		return Reading{}, fmt.Errorf("%w: %s: %v", ErrFeedUnavailable, feedID, err)
	}
	return DecodeAccount(feedID, data)
}

var feedFileName = strings.NewReplacer("/", "_", "\\", "_")

// AccountFileName feed id 对应的账户镜像文件名，SOL/USD -> SOL_USD.bin。
func AccountFileName(feedID string) string {
	return feedFileName.Replace(feedID) + ".bin"
}

// DirFetcher 从目录读取外部进程落盘的价格账户镜像。
func DirFetcher(dir string) AccountFetcher {
	return func(_ context.Context, feedID string) ([]byte, error) {
		return os.ReadFile(filepath.Join(dir, AccountFileName(feedID)))
	}
}
