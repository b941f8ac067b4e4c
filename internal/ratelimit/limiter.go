package ratelimit

import (
	"fmt"
	"sync"
	"time"

	"github.com/leadflow-server/leadflow-server/internal/models"
)

// Decision is the result of a rate limit check
type Decision struct {
	Allowed   bool      `json:"allowed"`
	Remaining int       `json:"remaining"`
	ResetAt   time.Time `json:"resetAt"`
}

// ResetResult is the result of an administrative reset
type ResetResult struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Cleared int    `json:"cleared"`
}

// window is a fixed rate limit window for one sender/recipient pair.
// Fixed windows are used deliberately: O(1) memory per pair, and the slight
// burstiness at window boundaries is acceptable for a support throttle.
type window struct {
	mu          sync.Mutex
	count       int
	windowStart time.Time
}

// Limiter tracks outbound message counts per (sender, recipient) pair.
// Windows live in a map guarded by a read-write mutex; counting is
// serialized per window so checks on different pairs proceed independently.
type Limiter struct {
	mu      sync.RWMutex
	windows map[pairKey]*window
	now     func() time.Time
}

type pairKey struct {
	sender    string
	recipient string
}

// NewLimiter creates a new rate limiter
func NewLimiter() *Limiter {
	return &Limiter{
		windows: make(map[pairKey]*window),
		now:     time.Now,
	}
}

func (l *Limiter) getWindow(key pairKey) *window {
	l.mu.RLock()
	w, ok := l.windows[key]
	l.mu.RUnlock()
	if ok {
		return w
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if w, ok = l.windows[key]; ok {
		return w
	}
	w = &window{windowStart: l.now()}
	l.windows[key] = w
	return w
}

// CheckAndConsume checks whether a send is permitted for the pair and, if
// so, consumes one slot. The window rolls when its interval has elapsed.
func (l *Limiter) CheckAndConsume(senderID, recipientID string, eff models.Settings) Decision {
	w := l.getWindow(pairKey{sender: senderID, recipient: recipientID})

	w.mu.Lock()
	defer w.mu.Unlock()

	now := l.now()
	windowDur := eff.RateLimitWindow()

	if !now.Before(w.windowStart.Add(windowDur)) {
		w.count = 0
		w.windowStart = now
	}

	resetAt := w.windowStart.Add(windowDur)

	if w.count >= eff.RateLimitMaxMessages {
		return Decision{Allowed: false, Remaining: 0, ResetAt: resetAt}
	}

	w.count++
	return Decision{
		Allowed:   true,
		Remaining: eff.RateLimitMaxMessages - w.count,
		ResetAt:   resetAt,
	}
}

// Peek reports whether a send would be permitted right now without
// consuming a slot.
func (l *Limiter) Peek(senderID, recipientID string, eff models.Settings) Decision {
	key := pairKey{sender: senderID, recipient: recipientID}

	l.mu.RLock()
	w, ok := l.windows[key]
	l.mu.RUnlock()

	now := l.now()
	windowDur := eff.RateLimitWindow()

	if !ok {
		return Decision{
			Allowed:   true,
			Remaining: eff.RateLimitMaxMessages,
			ResetAt:   now.Add(windowDur),
		}
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if !now.Before(w.windowStart.Add(windowDur)) {
		// Window has lapsed; a send now would start a fresh one.
		return Decision{
			Allowed:   true,
			Remaining: eff.RateLimitMaxMessages,
			ResetAt:   now.Add(windowDur),
		}
	}

	remaining := eff.RateLimitMaxMessages - w.count
	if remaining < 0 {
		remaining = 0
	}

	return Decision{
		Allowed:   remaining > 0,
		Remaining: remaining,
		ResetAt:   w.windowStart.Add(windowDur),
	}
}

// Reset clears rate limit windows. With an empty senderID it clears every
// sender window for the recipient; otherwise it clears exactly one window.
// Reset is idempotent and always succeeds.
func (l *Limiter) Reset(recipientID, senderID string) ResetResult {
	l.mu.Lock()
	defer l.mu.Unlock()

	cleared := 0
	if senderID != "" {
		key := pairKey{sender: senderID, recipient: recipientID}
		if _, ok := l.windows[key]; ok {
			delete(l.windows, key)
			cleared = 1
		}
	} else {
		for key := range l.windows {
			if key.recipient == recipientID {
				delete(l.windows, key)
				cleared++
			}
		}
	}

	msg := "no windows found"
	if cleared > 0 {
		msg = fmt.Sprintf("cleared %d window(s)", cleared)
	}

	return ResetResult{Success: true, Message: msg, Cleared: cleared}
}
