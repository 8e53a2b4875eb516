// Package net owns every raw connection to an article server: pooling,
// health-based rotation, rate limiting, and the retry policy applied to
// post and fetch operations. Nothing above this package talks to a server
// directly.
package net
