package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"go.uber.org/zap"

	"quote-engine/internal/container"
)

func main() {
	cfgPath := flag.String("config", "configs/quoter.yaml", "配置文件路径")
	flag.Parse()

	c, err := container.New(*cfgPath)
	if err != nil {
		log.Fatalf("加载配置失败: %v", err)
	}
	if err := c.Build(); err != nil {
		log.Fatalf("构建组件失败: %v", err)
	}
	lg := c.Logger()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// watchdog：每轮报价结束后心跳，限速到 WatchdogSec 的一半
	if interval, err := daemon.SdWatchdogEnabled(false); err == nil && interval > 0 {
		var mu sync.Mutex
		var last time.Time
		c.Runner().SetTickHook(func() {
			mu.Lock()
			defer mu.Unlock()
			if time.Since(last) < interval/2 {
				return
			}
			last = time.Now()
			_, _ = daemon.SdNotify(false, daemon.SdNotifyWatchdog)
		})
		lg.Info("systemd watchdog enabled", zap.Duration("interval", interval))
	}

	if err := c.Start(ctx); err != nil {
		lg.Error("启动失败", zap.Error(err))
		_ = c.Stop()
		os.Exit(1)
	}
	if sent, err := daemon.SdNotify(false, daemon.SdNotifyReady); err != nil {
		lg.Warn("sd_notify READY failed", zap.Error(err))
	} else if sent {
		lg.Info("notified systemd READY")
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-quit:
		lg.Info("收到退出信号", zap.String("signal", sig.String()))
	case <-c.Runner().Done():
		lg.Info("报价循环结束")
	}

	_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)
	cancel()
	if err := c.Stop(); err != nil {
		log.Printf("停止时出错: %v", err)
		os.Exit(1)
	}
}
