package extrinsics

import "errors"

var (
	// ErrMalformedCall is never returned to a caller: a parse failure
	// silently aborts the offending process (spec §4.3 "Parsing
	// contract"). It exists so internal parse helpers have a single
	// sentinel to return.
	ErrMalformedCall = errors.New("extrinsics: malformed hardcoded call parameters")

	// ErrUnknownExtrinsic is a host-side contract violation: the process
	// layer resolved an import to a token this Core never registered.
	ErrUnknownExtrinsic = errors.New("extrinsics: interrupted on a token with no registered extrinsic")

	// ErrNotPending is returned by accept/refuse/resume helpers called
	// twice on the same handle, and by
	// ThreadWaitNotification.ResumeNoNotification on a blocking wait.
	ErrNotPending = errors.New("extrinsics: thread handle already resolved")

	// ErrNotificationIndexOutOfRange is returned by
	// ThreadWaitNotification.ResumeNotification when index is outside
	// the parsed wait_entries list, or points at a sentinel (empty) slot.
	ErrNotificationIndexOutOfRange = errors.New("extrinsics: notification index out of range or empty")

	// ErrNotificationTooBig is returned by ResumeNotification when the
	// caller's bytes don't fit the guest's declared out-buffer; the
	// caller should use ResumeNotificationTooBig instead.
	ErrNotificationTooBig = errors.New("extrinsics: notification payload exceeds the guest's declared buffer size")

	// ErrBadAcceptEmit is returned by ThreadEmitMessage.AcceptEmit when
	// message_id.IsSome() doesn't match needs_answer (spec §4.3).
	ErrBadAcceptEmit = errors.New("extrinsics: accept_emit's message id presence must match needs_answer")
)
