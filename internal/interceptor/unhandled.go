package interceptor

import (
	"sync"
	"time"

	"github.com/rockerboo/lean-proof-bridge/internal/logging"
)

// unhandledWindow and unhandledBurst bound how often a debug line fires for
// a method classify doesn't recognize, so a noisy, high-frequency method
// (e.g. a custom notification this build never learned about) can't flood
// the log file. The transparency guarantee is unaffected either way: this
// only gates a debug log line, never the forwarding path.
const (
	unhandledWindow = 10 * time.Second
	unhandledBurst  = 3
)

type unhandledBucket struct {
	windowStart time.Time
	emitted     int
	suppressed  int
}

var (
	unhandledMu      sync.Mutex
	unhandledBuckets = map[string]*unhandledBucket{}
)

// logUnhandled records, at debug level and rate-limited per method, that a
// message passed through classify without matching any known case.
func logUnhandled(method string) {
	if method == "" {
		return
	}

	now := time.Now()

	unhandledMu.Lock()
	defer unhandledMu.Unlock()

	b := unhandledBuckets[method]
	if b == nil {
		b = &unhandledBucket{windowStart: now}
		unhandledBuckets[method] = b
	}

	if now.Sub(b.windowStart) >= unhandledWindow {
		if b.suppressed > 0 {
			logging.Debug("unhandled messages suppressed", "method", method, "count", b.suppressed, "window", unhandledWindow.String())
		}
		b.windowStart = now
		b.emitted = 0
		b.suppressed = 0
	}

	if b.emitted >= unhandledBurst {
		b.suppressed++
		return
	}

	b.emitted++
	logging.Debug("unclassified message forwarded", "method", method)
}
