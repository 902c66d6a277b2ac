// Package cluster is the engine's view of the cluster API.
//
// The engine never talks to the API server directly. It needs exactly three
// things from the cluster, which Cluster bundles:
//
//   - a watch stream of add/update/delete notifications carrying resource
//     versions (Informer),
//   - synchronous get/list against a locally cached view (Reader),
//   - create/update/patch/delete that may fail with a conflict or not-found
//     error (Writer), plus an uncached reader used to refetch after a conflict.
//
// NewKubernetes implements Cluster on top of a controller-runtime cache and
// client. Package clustertest provides an in-memory implementation for tests.
package cluster
