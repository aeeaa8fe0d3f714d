// Package health tracks adapter connections, outbound sinks and the HTTP
// gateway, and folds them into the status served on /health.
//
// A part is healthy, degraded or unhealthy. The aggregate takes the worst
// state of its parts. Messages built from connection errors are stripped of
// addresses and credentials before they are stored.
package health
