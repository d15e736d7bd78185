// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

// Package concurrency holds the lock-free primitives the reactor uses to
// funnel cross-thread commands onto its own goroutine.
package concurrency
