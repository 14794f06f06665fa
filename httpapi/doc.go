// Package httpapi serves the sessionflow controller over HTTP.
//
// Every route except /metrics and /healthz runs with a session loaded from
// the request cookies. Failures are written as {"success":false,"error":...}
// with the status of the underlying flow error; unexpected errors are logged
// and reported as a generic 500.
package httpapi
