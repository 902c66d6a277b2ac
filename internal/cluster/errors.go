package cluster

import (
	apierrors "k8s.io/apimachinery/pkg/api/errors"
)

// IsConflict reports an optimistic-concurrency conflict. The write should be
// retried against a freshly read object.
func IsConflict(err error) bool {
	return apierrors.IsConflict(err)
}

// IsNotFound reports that the object does not exist.
func IsNotFound(err error) bool {
	return apierrors.IsNotFound(err)
}

// IsAlreadyExists reports that a create raced with another writer.
func IsAlreadyExists(err error) bool {
	return apierrors.IsAlreadyExists(err)
}

// IgnoreNotFound returns nil for not-found errors. Deleting an object that is
// already gone is treated as success.
func IgnoreNotFound(err error) error {
	if IsNotFound(err) {
		return nil
	}
	return err
}

// IsTransient reports errors that are expected to go away on retry.
func IsTransient(err error) bool {
	return apierrors.IsConflict(err) ||
		apierrors.IsServerTimeout(err) ||
		apierrors.IsTimeout(err) ||
		apierrors.IsTooManyRequests(err) ||
		apierrors.IsServiceUnavailable(err) ||
		apierrors.IsInternalError(err)
}
