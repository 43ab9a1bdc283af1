package coordinator

import "errors"

// ErrFingerprintMismatch is returned by a worker when a Process request's
// FilesFingerprint does not match the fingerprint the worker itself
// computed over its own copy of the dataset's file list — a sign the
// master and worker are reading different config files.
var ErrFingerprintMismatch = errors.New("coordinator: files fingerprint mismatch between master and worker")
