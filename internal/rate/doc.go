// Package rate implements the optional login throttle: fixed-window Redis
// counters (INCR, then EXPIRE on the first hit) keyed by username and,
// when enabled, by client IP.
package rate
