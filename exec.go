// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package memq

import (
	"code.hybscloud.com/kont"
)

// Exec runs a Cont-world messaging program on the endpoints its
// operations carry. Blocks on iox.ErrWouldBlock via adaptive backoff
// (iox.Backoff), without spawning goroutines or creating channels.
func Exec[R any](program kont.Eff[R]) R {
	return kont.Handle(program, waitHandler[R]{})
}

// ExecExpr runs an Expr-world messaging program on the endpoints its
// operations carry. Blocks on iox.ErrWouldBlock via adaptive backoff
// (iox.Backoff), without spawning goroutines or creating channels.
func ExecExpr[R any](program kont.Expr[R]) R {
	return kont.HandleExpr(program, waitHandler[R]{})
}
