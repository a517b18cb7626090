package process

import "errors"

var (
	// ErrDuplicateExtrinsic is returned by Builder.RegisterExtrinsic when
	// the (module, name) pair was already registered.
	ErrDuplicateExtrinsic = errors.New("process: extrinsic already registered under this module/name")

	// ErrRunningOrDead is returned by ProcessByID/InterruptedThreadByID
	// when no process/thread with that id is currently reachable — it
	// either never existed, already finished, or (for a thread) is
	// currently running rather than parked.
	ErrRunningOrDead = errors.New("process: no such process or thread is currently reachable")

	// ErrAlreadyLocked is returned by InterruptedThreadByID when another
	// ThreadAccess for the same ThreadId is already outstanding.
	ErrAlreadyLocked = errors.New("process: thread is already locked by another ThreadAccess")

	// ErrWrongResumeType mirrors vm.ErrBadValueTy at the process layer.
	// No function of this package returns it: ThreadAccess.Resume does not
	// check the value's type, and a mismatch surfaces as vm.ErrBadValueTy
	// from ReadyToRun.Run when the thread actually resumes.
	ErrWrongResumeType = errors.New("process: resume value type does not match the interrupted call's declared return type")

	// ErrAlreadyConsumed is returned by ReadyToRun.Run if called twice on
	// the same handle.
	ErrAlreadyConsumed = errors.New("process: ReadyToRun already consumed")
)
