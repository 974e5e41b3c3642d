package gwutils

import (
	"github.com/pkg/errors"
	"github.com/xiaonanln/gwrepl/engine/gwlog"
)

// RunPanicless calls a function panic-freely
func RunPanicless(f func()) (paniced bool) {
	defer func() {
		err := recover()
		if err != nil {
			gwlog.TraceError("%v panic: %v", f, err)
			paniced = true
		}
	}()

	f()
	return
}

// CatchPanic calls a function and returns the recovered panic as an error
func CatchPanic(f func()) (err error) {
	defer func() {
		r := recover()
		if r == nil {
			return
		}
		if e, ok := r.(error); ok {
			err = errors.Wrap(e, "panic")
		} else {
			err = errors.Errorf("panic: %v", r)
		}
	}()

	f()
	return
}

// CatchPanicErr calls a function returning error and converts panics to errors as well
func CatchPanicErr(f func() error) (err error) {
	perr := CatchPanic(func() {
		err = f()
	})
	if perr != nil {
		return perr
	}
	return err
}
