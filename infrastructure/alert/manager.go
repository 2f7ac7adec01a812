package alert

import (
	"fmt"
	"sync"
	"time"
)

// Level 告警级别
type Level string

const (
	LevelInfo     Level = "INFO"
	LevelWarning  Level = "WARNING"
	LevelCritical Level = "CRITICAL"
)

// Alert 告警信息
type Alert struct {
	Level     Level                  `json:"level"`
	Message   string                 `json:"message"`
	Timestamp time.Time              `json:"timestamp"`
	Fields    map[string]interface{} `json:"fields,omitempty"`
}

// Channel 告警通道接口
type Channel interface {
	Send(alert Alert) error
	Name() string
}

// Manager 告警管理器：相同级别+消息在限流窗口内只发一次。
type Manager struct {
	channels []Channel
	interval time.Duration
	lastSent map[string]time.Time
	now      func() time.Time
	mu       sync.Mutex
}

// NewManager 创建告警管理器
func NewManager(channels []Channel, throttleInterval time.Duration) *Manager {
	return &Manager{
		channels: channels,
		interval: throttleInterval,
		lastSent: make(map[string]time.Time),
		now:      time.Now,
	}
}

// Send 发送告警。被限流时返回 nil；所有通道都失败才返回错误。
func (m *Manager) Send(a Alert) error {
	m.mu.Lock()
	if a.Timestamp.IsZero() {
		a.Timestamp = m.now()
	}
	key := string(a.Level) + ":" + a.Message
	if last, ok := m.lastSent[key]; ok && a.Timestamp.Sub(last) < m.interval {
		m.mu.Unlock()
		return nil
	}
	m.lastSent[key] = a.Timestamp
	channels := append([]Channel(nil), m.channels...)
	m.mu.Unlock()

	var lastErr error
	ok := 0
	for _, ch := range channels {
		if err := ch.Send(a); err != nil {
			lastErr = fmt.Errorf("channel %s failed: %w", ch.Name(), err)
			continue
		}
		ok++
	}
	if ok == 0 && lastErr != nil {
		return lastErr
	}
	return nil
}

func (m *Manager) Info(message string, fields map[string]interface{}) error {
	return m.Send(Alert{Level: LevelInfo, Message: message, Fields: fields})
}

func (m *Manager) Warning(message string, fields map[string]interface{}) error {
	return m.Send(Alert{Level: LevelWarning, Message: message, Fields: fields})
}

func (m *Manager) Critical(message string, fields map[string]interface{}) error {
	return m.Send(Alert{Level: LevelCritical, Message: message, Fields: fields})
}

// AddChannel 添加告警通道
func (m *Manager) AddChannel(ch Channel) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.channels = append(m.channels, ch)
}

// Channels 通道名称列表
func (m *Manager) Channels() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	names := make([]string, 0, len(m.channels))
	for _, ch := range m.channels {
		names = append(names, ch.Name())
	}
	return names
}

// ResetThrottle 清空限流记录
func (m *Manager) ResetThrottle() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastSent = make(map[string]time.Time)
}
