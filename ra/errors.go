package ra

import "fmt"

// The generation protocol fails closed: each error class below aborts the
// run with no partial artifact. Nothing in this package retries; callers own
// retry policy.

// PlatformError wraps a failed call into the platform quoting capability.
type PlatformError struct {
	Op  string
	Err error
}

func (e *PlatformError) Error() string {
	return fmt.Sprintf("platform %s failed: %v", e.Op, e.Err)
}

func (e *PlatformError) Unwrap() error { return e.Err }

// NetworkError wraps a failed attestation service exchange. Fatal for report
// submission; the revocation-list fetch degrades to an empty list instead.
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("attestation service %s failed: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// IntegrityError signals active tampering or a compromised intermediate
// component: a failed self-check report, a platform identity mismatch, or an
// anti-replay digest mismatch. Never downgraded.
type IntegrityError struct {
	Reason string
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("attestation integrity check failed: %s", e.Reason)
}
