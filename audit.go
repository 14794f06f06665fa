package sessionflow

import (
	"io"
	"log/slog"

	"github.com/MrEthical07/sessionflow/internal/audit"
)

// AuditEvent is one audit record.
type AuditEvent = audit.Event

// AuditSink receives audit events from the dispatcher goroutine.
type AuditSink = audit.Sink

// ChannelSink buffers events in a channel; mostly useful in tests.
type ChannelSink = audit.ChannelSink

// Audit event types.
const (
	AuditLoginSuccess       = audit.LoginSuccess
	AuditLoginFailure       = audit.LoginFailure
	AuditRegisterSuccess    = audit.RegisterSuccess
	AuditRegisterDuplicate  = audit.RegisterDuplicate
	AuditOAuth2LoginSuccess = audit.OAuth2LoginSuccess
	AuditOAuth2LoginFailure = audit.OAuth2LoginFailure
	AuditCsrfMismatch       = audit.CsrfMismatch
	AuditLogout             = audit.Logout
)

// NewSlogAuditSink logs audit events through logger.
func NewSlogAuditSink(logger *slog.Logger) AuditSink {
	return audit.NewSlogSink(logger)
}

// NewJSONAuditSink writes one JSON object per event to w.
func NewJSONAuditSink(w io.Writer) AuditSink {
	return audit.NewJSONWriterSink(w)
}

// NewChannelSink returns a sink buffering up to buffer events.
func NewChannelSink(buffer int) *ChannelSink {
	return audit.NewChannelSink(buffer)
}
