// Package middleware adapts the sessionflow controller to net/http.
//
// [Session] resolves the session of every request from its signed cookies
// and stores it in the request context. [Guard] evaluates access predicates
// against that session and short-circuits before the handler runs.
// [ClientInfo] records the caller's IP and User-Agent for the throttle and
// audit events.
//
// This package does not implement authentication. Every decision is
// delegated to the controller or to the predicates passed in.
package middleware
