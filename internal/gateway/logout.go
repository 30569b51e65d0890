package gateway

import (
	"sync"
	"time"

	"github.com/buildhub/erp-mcp/internal/logger"
)

const (
	// DefaultMax401 is the consecutive-401 threshold below which a recent
	// success suppresses the logout path.
	DefaultMax401 = 2
	// DefaultRecentSuccessWindow is how fresh a success must be to count
	// as evidence against a stray 401.
	DefaultRecentSuccessWindow = 5 * time.Second
	// DefaultLogoutDebounce is how long a tentative logout stays
	// cancellable before the token is revalidated.
	DefaultLogoutDebounce = 1500 * time.Millisecond
)

type logoutState int

const (
	stateIdle logoutState = iota
	stateAwaitingDebounce
	stateRevalidating
	stateLoggedOut
)

// logoutGuard sequences the defensive-logout protocol: 401s on real
// endpoints accumulate, a debounce timer gives in-flight successes a chance
// to veto, and the token is revalidated against the self endpoint before
// the session is actually cleared.
//
// Callers run on arbitrary goroutines, so every transition is serialized
// by mu.
type logoutGuard struct {
	mu             sync.Mutex
	state          logoutState
	consecutive401 int
	lastSuccess    time.Time
	timer          *time.Timer

	max401       int
	recentWindow time.Duration
	debounce     time.Duration
	now          func() time.Time

	// revalidate probes the self endpoint directly, bypassing the request
	// pipeline. It reports whether the token is still good; a network
	// failure reports false, which commits the logout (policy: an
	// unreachable backend is treated the same as a rejected token).
	revalidate func() bool
	// commit clears stored credentials and notifies the owner. Runs once.
	commit func()
}

func newLogoutGuard(max401 int, recentWindow, debounce time.Duration, revalidate func() bool, commit func()) *logoutGuard {
	if max401 <= 0 {
		max401 = DefaultMax401
	}
	if recentWindow <= 0 {
		recentWindow = DefaultRecentSuccessWindow
	}
	if debounce <= 0 {
		debounce = DefaultLogoutDebounce
	}
	return &logoutGuard{
		max401:       max401,
		recentWindow: recentWindow,
		debounce:     debounce,
		now:          time.Now,
		revalidate:   revalidate,
		commit:       commit,
	}
}

// onSuccess records a successful response. Any pending logout, whether
// still debouncing or already revalidating, is cancelled: fresh evidence
// that the session works beats a stale 401.
func (g *logoutGuard) onSuccess() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.consecutive401 = 0
	g.lastSuccess = g.now()
	switch g.state {
	case stateAwaitingDebounce:
		if g.timer != nil {
			g.timer.Stop()
			g.timer = nil
		}
		g.state = stateIdle
		logger.Infof("logout debounce cancelled by successful request")
	case stateRevalidating:
		g.state = stateIdle
	}
}

// on401 routes an authentication failure for path. Auth and background
// endpoints never count. A lone 401 right after a success is treated as a
// race between a token refresh and an in-flight request.
func (g *logoutGuard) on401(path string) {
	if isAuthEndpoint(path) || isBackgroundEndpoint(path) {
		return
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.state == stateLoggedOut {
		return
	}
	g.consecutive401++
	if g.consecutive401 < g.max401 && !g.lastSuccess.IsZero() && g.now().Sub(g.lastSuccess) < g.recentWindow {
		logger.Infof("ignoring 401 on %s: %d consecutive with recent success", path, g.consecutive401)
		return
	}
	if g.state != stateIdle {
		return
	}
	g.state = stateAwaitingDebounce
	logger.Warnf("401 on %s (%d consecutive), logout in %s unless a success lands", path, g.consecutive401, g.debounce)
	g.timer = time.AfterFunc(g.debounce, g.fire)
}

// fire runs when the debounce elapses without a cancelling success.
func (g *logoutGuard) fire() {
	g.mu.Lock()
	if g.state != stateAwaitingDebounce {
		g.mu.Unlock()
		return
	}
	g.state = stateRevalidating
	g.timer = nil
	g.mu.Unlock()

	ok := g.revalidate()

	g.mu.Lock()
	if g.state != stateRevalidating {
		// A success during revalidation already moved us back to Idle.
		g.mu.Unlock()
		return
	}
	if ok {
		g.state = stateIdle
		g.consecutive401 = 0
		g.mu.Unlock()
		logger.Infof("token revalidated, logout cancelled")
		return
	}
	g.state = stateLoggedOut
	g.mu.Unlock()
	logger.Warnf("token revalidation failed, clearing session")
	g.commit()
}

// reset returns a logged-out guard to Idle. Called after a new login.
func (g *logoutGuard) reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.timer != nil {
		g.timer.Stop()
		g.timer = nil
	}
	g.state = stateIdle
	g.consecutive401 = 0
}
