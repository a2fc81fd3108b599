package models

import "errors"

// Pipeline failure taxonomy. Components wrap these sentinels with call-site
// context; callers classify with errors.Is.
var (
	// ErrUpstreamUnavailable indicates an external service call
	// (extraction, embedding, vector index, LLM) failed or timed out.
	ErrUpstreamUnavailable = errors.New("upstream service unavailable")

	// ErrRateLimited indicates an upstream rate limit was hit. Transient;
	// the caller may retry the whole batch.
	ErrRateLimited = errors.New("upstream rate limited")

	// ErrMalformedInput indicates input that has a defined empty/none
	// result rather than a crash (empty file, zero blocks, short polygon).
	ErrMalformedInput = errors.New("malformed input")

	// ErrNotFound indicates a requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrAnswerNotPersisted indicates generation succeeded but the final
	// write failed; the operation is retryable without data loss.
	ErrAnswerNotPersisted = errors.New("answer generated but not persisted")
)
