package sim

import (
	"sync"
	"time"
)

// ManualClock 高度和时间都由调用方推进，测试用。
type ManualClock struct {
	mu     sync.Mutex
	height uint64
	now    time.Time
}

func NewManualClock(height uint64, now time.Time) *ManualClock {
	return &ManualClock{height: height, now: now}
}

func (c *ManualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *ManualClock) Height() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.height
}

// Advance 高度 +n，时间按 slot 推进。
func (c *ManualClock) Advance(n uint64, slot time.Duration) {
	c.mu.Lock()
	c.height += n
	c.now = c.now.Add(time.Duration(n) * slot)
	c.mu.Unlock()
}

// SlotClock 按墙钟推算高度：base + (now - genesis) / slot。
type SlotClock struct {
	Genesis time.Time
	Slot    time.Duration
	Base    uint64
}

func NewSlotClock(slot time.Duration) SlotClock {
	if slot <= 0 {
		slot = 400 * time.Millisecond
	}
	return SlotClock{Genesis: time.Now(), Slot: slot}
}

func (c SlotClock) Now() time.Time { return time.Now() }

func (c SlotClock) Height() uint64 {
	elapsed := time.Since(c.Genesis)
	if elapsed < 0 {
		return c.Base
	}
	return c.Base + uint64(elapsed/c.Slot)
}
