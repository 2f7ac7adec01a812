package config

import (
	"context"
	"os"
	"time"
)

// Watcher 按固定间隔检查配置文件的修改时间，变化后重新读取 strategy 段。
// 用于 fsnotify 不可用的文件系统（部分网络盘、容器挂载）。
type Watcher struct {
	Path     string
	Interval time.Duration
	// OnError 收到读取或校验失败；该版本被跳过，等待下一次修改。
	OnError func(error)

	modTime func(path string) (time.Time, error)
}

func statModTime(path string) (time.Time, error) {
	info, err := os.Stat(path)
	if err != nil {
		return time.Time{}, err
	}
	return info.ModTime(), nil
}

// Start 阻塞直到 ctx 结束，返回 ctx.Err()。
func (w Watcher) Start(ctx context.Context, onUpdate func(StrategyConfig)) error {
	interval := w.Interval
	if interval <= 0 {
		interval = 2 * time.Second
	}
	modTime := w.modTime
	if modTime == nil {
		modTime = statModTime
	}

	// 启动时的版本视为已生效
	seen, _ := modTime(w.Path)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
		mod, err := modTime(w.Path)
		if err != nil || !mod.After(seen) {
			continue
		}
		seen = mod
		sc, err := LoadStrategy(w.Path)
		switch {
		case err != nil:
			if w.OnError != nil {
				w.OnError(err)
			}
		case onUpdate != nil:
			onUpdate(sc)
		}
	}
}
