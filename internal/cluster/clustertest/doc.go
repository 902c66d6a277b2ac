// Package clustertest provides an in-memory cluster.Cluster for tests.
//
// It wraps controller-runtime's fake client and replays every successful
// write as a watch notification to the informers handed out by Informer, so
// event sources see the same add/update/delete stream they would see against
// a real API server. Tests can also inject notifications directly (EmitAdd,
// EmitUpdate, EmitDelete, EmitTombstone) and intercept writes (BeforeWrite).
package clustertest
