// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package memq

import (
	"code.hybscloud.com/kont"
)

// Step evaluates a messaging program until the first effect suspension.
// Returns (result, nil) on completion, or (zero, suspension) if pending.
func Step[R any](program kont.Expr[R]) (R, *kont.Suspension[R]) {
	return kont.StepExpr(program)
}

// Advance dispatches the suspended messaging operation. DispatchWait is
// non-blocking: it returns iox.ErrWouldBlock when the bounded queue or
// pool cannot make progress (the transfer boundary).
//
// On success (nil error), the suspension is consumed and the program
// advances to the next effect or completion.
// On iox.ErrWouldBlock, the suspension is unconsumed and may be retried
// after the peer endpoint makes progress.
func Advance[R any](susp *kont.Suspension[R]) (R, *kont.Suspension[R], error) {
	wop, ok := susp.Op().(waitDispatcher)
	if !ok {
		panic("memq: unhandled effect in Advance")
	}
	v, err := wop.DispatchWait()
	if err != nil {
		var zero R
		return zero, susp, err
	}
	result, next := susp.Resume(v)
	return result, next, nil
}
