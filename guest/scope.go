package guest

import (
	"context"

	"github.com/mensylisir/xmguest/common"
	"github.com/mensylisir/xmguest/hook"
	"github.com/mensylisir/xmguest/runner"
)

// Enter installs a guest strategy for target on r. The returned release
// restores the strategy that was active before the call and is safe to
// call more than once.
//
//	release := guest.Enter(r, "101")
//	defer release()
func Enter(r *runner.Runner, target string, opts ...Option) (release func()) {
	restore := r.Install(NewStrategy(target, opts...))
	r.Logger().WithField(common.GuestName, target).Debugf("entered guest scope")
	return func() {
		restore()
		r.Logger().WithField(common.GuestName, target).Debugf("left guest scope")
	}
}

// Scope runs fn with r redirected into target. The previous strategy is
// restored on every exit path; a panic in fn is returned as an error.
func Scope(ctx context.Context, r *runner.Runner, target string, fn func(ctx context.Context, r *runner.Runner) error, opts ...Option) error {
	var release func()
	return hook.Call(hook.Funcs{
		TryFunc: func() error {
			release = Enter(r, target, opts...)
			return fn(ctx, r)
		},
		FinallyFunc: func() {
			if release != nil {
				release()
			}
		},
	})
}

// Runner returns a child of r whose commands run inside target. r itself
// is left untouched.
func Runner(r *runner.Runner, target string, opts ...Option) *runner.Runner {
	return r.With(NewStrategy(target, opts...))
}
