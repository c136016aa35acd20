// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package memq

import "github.com/rs/zerolog"

// logger emits lifecycle diagnostics (service create/open/remove, endpoint
// create/close, waitset faults). Disabled by default; data-plane operations
// never log.
var logger = zerolog.Nop()

// SetLogger installs a zerolog logger for lifecycle diagnostics.
// Call before creating nodes; the logger is not synchronized against
// concurrent service operations once handed over.
func SetLogger(l zerolog.Logger) {
	logger = l
}
