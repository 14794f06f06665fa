// Package audit delivers session-flow audit events to a sink without
// blocking the request path.
//
// The package owns buffering and delivery only. Which events exist and when
// they fire is decided by the flow controller.
package audit
