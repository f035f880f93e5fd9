package hook

import "fmt"

// Interface is a guarded region: Try runs the body, Catch sees its error and
// Finally always runs last, on every exit path including panics.
type Interface interface {
	Try() error
	Catch(err error) error
	Finally()
}

// Funcs adapts plain functions to Interface. Nil members are no-ops; a nil
// CatchFunc returns the error unchanged.
type Funcs struct {
	TryFunc     func() error
	CatchFunc   func(err error) error
	FinallyFunc func()
}

func (f Funcs) Try() error {
	if f.TryFunc == nil {
		return nil
	}
	return f.TryFunc()
}

func (f Funcs) Catch(err error) error {
	if f.CatchFunc == nil {
		return err
	}
	return f.CatchFunc(err)
}

func (f Funcs) Finally() {
	if f.FinallyFunc != nil {
		f.FinallyFunc()
	}
}

func Call(hook Interface) (err error) {
	if hook == nil {
		return fmt.Errorf("hook cannot be nil")
	}

	defer hook.Finally()

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic occurred during hook execution: %v", r)
		}
	}()

	tryErr := hook.Try()
	if tryErr != nil {
		err = hook.Catch(tryErr)
		return err
	}

	return nil
}
