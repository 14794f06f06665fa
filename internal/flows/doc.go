// Package flows holds the session and identity flows: login, registration,
// OAuth2 redirect and callback, logout, the session counter and the access
// predicates.
//
// Flows are plain functions over typed dependency structs. They never
// import the root package; host errors, audit hooks and metric hooks are
// injected through [Errors] and [Hooks].
package flows
