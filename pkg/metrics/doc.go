// Package metrics defines and registers driftshare's Prometheus metrics and
// exposes them over HTTP for scraping.
//
// Metrics fall into four groups: pipeline (folders tracked, job counts by
// kind and state, segments posted, bytes moved, retries), shares (published
// by tier, revoked, currently active), article network (connections in use
// per server, post/fetch latency), and store (manifest build latency, slow
// query backlog).
//
// Collector samples the store on a fixed interval for gauges that have no
// natural call site to update inline (queue depth, active share count).
// The counters and histograms are only registered here; no other package
// in this repository updates them.
package metrics
