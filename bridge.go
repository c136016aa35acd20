// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package memq

import (
	"context"

	"code.hybscloud.com/iox"
	"code.hybscloud.com/kont"
)

// Reify converts a Cont-world messaging program to Expr-world.
// The resulting Expr can be evaluated with ExecExpr or stepped with
// Step and Advance.
func Reify[A any](m kont.Eff[A]) kont.Expr[A] {
	return kont.Reify(m)
}

// Reflect converts an Expr-world messaging program to Cont-world.
// The resulting Eff can be evaluated with Exec.
func Reflect[A any](m kont.Expr[A]) kont.Eff[A] {
	return kont.Reflect(m)
}

// ctxErr wraps context termination as an Interrupt failure so callers
// distinguish cancellation from transfer faults with errors.Is.
func ctxErr(ctx context.Context) error {
	return &Failure{Kind: Interrupt, Detail: "context terminated during wait", Err: ctx.Err()}
}

// AwaitEvent blocks for the next event id, waking early on context
// termination with an Interrupt failure wrapping ctx.Err(). Waiting is
// adaptive-backoff polling with a cancellation check per pass, so the
// termination delay is bounded by the backoff ceiling.
func AwaitEvent(ctx context.Context, l *Listener) (EventID, error) {
	var bo iox.Backoff
	for {
		id, ok, err := l.TryWait()
		if err != nil {
			return 0, err
		}
		if ok {
			return id, nil
		}
		select {
		case <-ctx.Done():
			return 0, ctxErr(ctx)
		default:
		}
		bo.Wait()
	}
}

// AwaitReceive blocks for the next published sample, waking early on
// context termination with an Interrupt failure wrapping ctx.Err().
func AwaitReceive[T any](ctx context.Context, s *Subscriber[T]) (*Sample[T], error) {
	var bo iox.Backoff
	for {
		v, err := s.Receive()
		if err != nil {
			return nil, err
		}
		if v != nil {
			return v, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctxErr(ctx)
		default:
		}
		bo.Wait()
	}
}

// AwaitResponse blocks for the next response, waking early on context
// termination with an Interrupt failure wrapping ctx.Err().
func AwaitResponse[Req, Res any](ctx context.Context, p *PendingResponse[Req, Res]) (*Response[Res], error) {
	var bo iox.Backoff
	for {
		v, err := p.TryReceive()
		if err != nil {
			return nil, err
		}
		if v != nil {
			return v, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctxErr(ctx)
		default:
		}
		bo.Wait()
	}
}
