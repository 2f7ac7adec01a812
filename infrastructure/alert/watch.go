package alert

import "sync"

// UpdateWatch 统计连续失败的报价更新，达到阈值发 CRITICAL，恢复后发 INFO。
type UpdateWatch struct {
	manager   *Manager
	threshold int

	mu       sync.Mutex
	failures int
	firing   bool
}

func NewUpdateWatch(m *Manager, threshold int) *UpdateWatch {
	if threshold <= 0 {
		threshold = 3
	}
	return &UpdateWatch{manager: m, threshold: threshold}
}

// Observe 每次更新结束后调用；kind 为错误分类，成功时忽略。
func (w *UpdateWatch) Observe(kind string, err error) {
	w.mu.Lock()
	if err == nil {
		recovered := w.firing
		failures := w.failures
		w.failures, w.firing = 0, false
		w.mu.Unlock()
		if recovered {
			_ = w.manager.Info("quote updates recovered", map[string]interface{}{"failed_updates": failures})
		}
		return
	}
	w.failures++
	fire := w.failures >= w.threshold && !w.firing
	if fire {
		w.firing = true
	}
	failures := w.failures
	w.mu.Unlock()

	if fire {
		_ = w.manager.Critical("quote updates failing", map[string]interface{}{
			"consecutive_failures": failures,
			"kind":                 kind,
			"error":                err.Error(),
		})
	}
}

// Failures 当前连续失败次数
func (w *UpdateWatch) Failures() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.failures
}

// FeedStatus 价格源断开/恢复告警，只在状态变化时发送。
type FeedStatus struct {
	manager *Manager

	mu        sync.Mutex
	connected bool
	seen      bool
}

func NewFeedStatus(m *Manager) *FeedStatus { return &FeedStatus{manager: m} }

func (f *FeedStatus) Set(connected bool, fields map[string]interface{}) {
	f.mu.Lock()
	changed := !f.seen || f.connected != connected
	wasSeen := f.seen
	f.connected, f.seen = connected, true
	f.mu.Unlock()

	switch {
	case !changed:
	case !connected:
		_ = f.manager.Warning("price feed disconnected", fields)
	case wasSeen:
		_ = f.manager.Info("price feed reconnected", fields)
	}
}
