// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

// Package server assembles the engine: listening socket, chunk-size probe,
// reactor loop and the worker pool that runs application tasks against
// handles under the worker-reference contract.
package server
