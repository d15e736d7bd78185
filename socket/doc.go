// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

// Package socket implements the connection-level byte pump: each accepted
// descriptor is owned by one Handle that drains reads and ordered queued
// writes under edge-triggered readiness, and is torn down through a
// deferred-destruction protocol safe against in-flight worker references.
package socket
