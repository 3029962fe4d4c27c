package eventbus

import (
	"moodify-server-go/internal/platform/logging"
)

type subscriber interface {
	Subscribe(topic string, fn interface{}) error
}

// AuditHandler writes gateway security events to the log.
type AuditHandler struct {
	logger *logging.Logger
}

func NewAuditHandler(logger *logging.Logger) *AuditHandler {
	return &AuditHandler{logger: logger}
}

func (h *AuditHandler) handleLogin(data LoginEventData) {
	if data.Success {
		h.logger.InfoTag("AUDIT", "login succeeded", map[string]any{
			"identity":   data.Identity,
			"client":     data.ClientKey,
			"request_id": data.RequestID,
		})
		return
	}
	h.logger.WarnTag("AUDIT", "login rejected", map[string]any{
		"identity":   data.Identity,
		"client":     data.ClientKey,
		"request_id": data.RequestID,
	})
}

func (h *AuditHandler) handleThrottled(data ThrottledEventData) {
	h.logger.WarnTag("AUDIT", "login throttled", map[string]any{
		"client":     data.ClientKey,
		"reset_at":   data.ResetAt,
		"request_id": data.RequestID,
	})
}

func (h *AuditHandler) handleProxyFailed(data ProxyFailedEventData) {
	h.logger.ErrorTag("AUDIT", "upstream unreachable", map[string]any{
		"route":      data.Route,
		"identity":   data.Identity,
		"request_id": data.RequestID,
		"reason":     data.Reason,
	})
}

// SetupAuditHandlers subscribes an AuditHandler to every gateway topic on bus.
func SetupAuditHandlers(bus subscriber, logger *logging.Logger) error {
	handler := NewAuditHandler(logger)
	if err := bus.Subscribe(EventAuthLogin, handler.handleLogin); err != nil {
		return err
	}
	if err := bus.Subscribe(EventAuthThrottled, handler.handleThrottled); err != nil {
		return err
	}
	return bus.Subscribe(EventProxyFailed, handler.handleProxyFailed)
}
