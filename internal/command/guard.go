package command

import "context"

// Guard is a scoped "panic-on-drop" sentinel: armed around a
// streaming-read critical section, it cancels the child process's context
// if the calling goroutine unwinds with the guard still armed. A panic
// already propagates through a deferred Release on its own; Release only
// needs to cancel the child before that unwind reaches the worker pool's
// recover(), which converts it into coreerr.PanicInCore — aborting the
// worker with no partial commit, instead of leaving a child process
// running unobserved.
//
// Grounded on distri's internal/mount.go cleanup-on-defer idiom (a deferred
// unmount runs unless explicitly disarmed after success), adapted here from
// "clean up a mount" to "kill a child process," since a streaming read that
// panics mid-line must not leave the compiler or build script running
// detached from any goroutine that would otherwise reap it.
type Guard struct {
	cancel context.CancelFunc
	armed  bool
}

// Arm returns a Guard tied to cancel and leaves disarming to the caller. Use
// as:
//
//	ctx, cancel := context.WithCancel(parent)
//	g := command.Arm(cancel)
//	defer g.Release()
//	... streaming read ...
//	g.Disarm()
func Arm(cancel context.CancelFunc) *Guard {
	return &Guard{cancel: cancel, armed: true}
}

// Disarm marks the guard as safely past its critical section. Call it
// directly once the critical section has returned; the deferred Release
// then does nothing, while a panic before Disarm leaves the guard armed for
// Release to act on.
func (g *Guard) Disarm() {
	g.armed = false
}

// Release is deferred immediately after Arm. If the caller reached Disarm
// before returning, Release is a no-op; otherwise — including on a panic
// unwind — it cancels the child process.
func (g *Guard) Release() {
	if g.armed {
		g.cancel()
	}
}
