package controller

import "time"

// UpdateControl tells the controller what to write back after Reconcile.
type UpdateControl struct {
	updateResource bool
	updateStatus   bool
	requeueAfter   time.Duration
}

// NoUpdate writes nothing beyond the engine-managed status.
func NoUpdate() UpdateControl { return UpdateControl{} }

// UpdateStatus merge-patches the primary's status, including fields set by
// the reconciler.
func UpdateStatus() UpdateControl { return UpdateControl{updateStatus: true} }

// UpdateResource updates the primary's spec and metadata.
func UpdateResource() UpdateControl { return UpdateControl{updateResource: true} }

// UpdateResourceAndStatus combines UpdateResource and UpdateStatus.
func UpdateResourceAndStatus() UpdateControl {
	return UpdateControl{updateResource: true, updateStatus: true}
}

// RescheduleAfter asks for another reconciliation after d.
func (u UpdateControl) RescheduleAfter(d time.Duration) UpdateControl {
	u.requeueAfter = d
	return u
}

func (u UpdateControl) UpdatesResource() bool       { return u.updateResource }
func (u UpdateControl) UpdatesStatus() bool         { return u.updateStatus }
func (u UpdateControl) RequeueAfter() time.Duration { return u.requeueAfter }

// DeleteControl tells the controller whether cleanup of a deleting primary is finished.
type DeleteControl struct {
	removeFinalizer bool
	requeueAfter    time.Duration
}

// RemoveFinalizer releases the primary so the cluster can delete it.
func RemoveFinalizer() DeleteControl { return DeleteControl{removeFinalizer: true} }

// KeepFinalizer holds the primary; cleanup runs again on the next event or
// after RescheduleAfter.
func KeepFinalizer() DeleteControl { return DeleteControl{} }

// RescheduleAfter asks for another cleanup pass after d.
func (d DeleteControl) RescheduleAfter(after time.Duration) DeleteControl {
	d.requeueAfter = after
	return d
}

func (d DeleteControl) RemovesFinalizer() bool      { return d.removeFinalizer }
func (d DeleteControl) RequeueAfter() time.Duration { return d.requeueAfter }
