package config

import (
	"context"
	"errors"
	"os"
	"sync/atomic"
	"testing"
	"time"
)

// bumpingClock 第一次返回 base，之后每次加一秒，模拟文件被反复改写。
func bumpingClock(base time.Time) func(string) (time.Time, error) {
	var calls int64
	return func(string) (time.Time, error) {
		n := atomic.AddInt64(&calls, 1)
		return base.Add(time.Duration(n-1) * time.Second), nil
	}
}

func TestWatcherReturnsOnCancel(t *testing.T) {
	w := Watcher{
		Path:     "missing.yaml",
		Interval: time.Millisecond,
		modTime:  func(string) (time.Time, error) { return time.Time{}, os.ErrNotExist },
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := w.Start(ctx, func(StrategyConfig) { t.Error("unexpected update") }); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestWatcherIgnoresUnchangedFile(t *testing.T) {
	path := writeTempConfig(t, validConfig)
	fixed := time.Unix(1_700_000_000, 0)
	w := Watcher{
		Path:     path,
		Interval: time.Millisecond,
		modTime:  func(string) (time.Time, error) { return fixed, nil },
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	var updates int32
	_ = w.Start(ctx, func(StrategyConfig) { atomic.AddInt32(&updates, 1) })
	if n := atomic.LoadInt32(&updates); n != 0 {
		t.Fatalf("unchanged file applied %d times", n)
	}
}

func TestWatcherAppliesNewVersion(t *testing.T) {
	path := writeTempConfig(t, validConfig)
	w := Watcher{Path: path, Interval: 2 * time.Millisecond, modTime: bumpingClock(time.Now())}

	ctx, cancel := context.WithCancel(context.Background())
	got := make(chan StrategyConfig, 1)
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = w.Start(ctx, func(sc StrategyConfig) {
			select {
			case got <- sc:
			default:
			}
		})
	}()
	defer func() { cancel(); <-done }()

	select {
	case sc := <-got:
		if sc.QuoteEdgeInBps != 10 || sc.Behavior.String() != "dime" {
			t.Fatalf("unexpected strategy: %+v", sc)
		}
	case <-time.After(time.Second):
		t.Fatal("no update delivered")
	}
}

func TestWatcherSkipsInvalidVersion(t *testing.T) {
	path := writeTempConfig(t, "strategy:\n  quote_edge_bps: 0\n")
	errs := make(chan error, 1)
	w := Watcher{
		Path:     path,
		Interval: 2 * time.Millisecond,
		modTime:  bumpingClock(time.Now()),
		OnError: func(err error) {
			select {
			case errs <- err:
			default:
			}
		},
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = w.Start(ctx, func(StrategyConfig) { t.Error("invalid strategy applied") })
	}()
	defer func() { cancel(); <-done }()

	select {
	case err := <-errs:
		var invalid ErrInvalid
		if !errors.As(err, &invalid) {
			t.Fatalf("expected ErrInvalid, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("no error reported")
	}
}
