// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

// Package api defines the interface surface between the connection-level
// byte pump and its external collaborators: the readiness poller and the
// access-log accumulator.
package api
