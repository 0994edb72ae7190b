// Package errors provides the classified error primitives shared by every alarmd package.
//
// A ClassifiedError carries a category, a severity and a retry hint next to the message,
// so boundary code (the CLI, the HTTP API, the dispatcher worker) can decide how to
// report a failure without string matching.
//
// Package-level sentinels are built once and compared with errors.Is:
//
//	var ErrLimitReached = errors.LimitError("alarm limit reached").Build()
//
//	if errors.Is(err, store.ErrLimitReached) { ... }
//
// Wrapping a lower-level failure keeps the cause reachable:
//
//	return errors.WrapError(err, errors.CategoryStore, "insert alarm").
//		WithContext("hour", a.Hour).
//		Build()
package errors
