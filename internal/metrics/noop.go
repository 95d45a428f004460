package metrics

import "time"

// NoopMetrics is a no-operation implementation of Recorder.
// All methods are empty, providing zero overhead when metrics are disabled.
type NoopMetrics struct{}

// Ensure NoopMetrics implements Recorder interface at compile time
var _ Recorder = (*NoopMetrics)(nil)

// NewNoopMetrics creates a new no-operation metrics recorder
func NewNoopMetrics() Recorder {
	return &NoopMetrics{}
}

func (n *NoopMetrics) RecordTokenIssued(grantType string, duration time.Duration) {}
func (n *NoopMetrics) RecordGrantRejected(grantType, errorCode string)            {}
func (n *NoopMetrics) RecordTokenRefresh(success bool)                            {}
func (n *NoopMetrics) RecordTokenRevoked(reason string)                           {}
func (n *NoopMetrics) RecordBearerAuth(result string)                             {}
func (n *NoopMetrics) RecordLogin(success bool)                                   {}
func (n *NoopMetrics) RecordLogout()                                              {}
func (n *NoopMetrics) RecordPermissionDenied(rule string)                         {}
