// Package query answers probe, current, sample and asset requests against
// the store and shapes the results into neutral snapshots grouped by device,
// component and category. Rendering is left to the caller.
//
// Every request resolves its device and path before touching the store, so
// malformed requests fail with a request error and no side effects. Each
// answer is computed inside a single store read, so its header and
// observations describe the same instant.
//
// Streaming variants repeat a current or sample computation on an interval
// and hand each snapshot to an Emit callback until the context ends or the
// callback fails.
package query
