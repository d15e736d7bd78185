// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

// Package reactor drives the engine: an edge-triggered epoll poller, a
// lock-free command queue funnelling cross-thread requests onto the
// reactor goroutine, and the loop dispatching readiness to socket handles.
package reactor
