package dialer

import (
	"context"
	"net/http"
	"time"

	"dialer-platform/internal/calls"
	"dialer-platform/internal/metrics"
	"dialer-platform/pkg/logger"

	"github.com/gin-gonic/gin"
)

// CallbackSink consumes normalized status callbacks.
// campaign.CallbackApplier satisfies this.
type CallbackSink interface {
	Apply(ctx context.Context, cb calls.StatusCallback) (bool, error)
}

// StatusWebhookHandler converts provider status callbacks to internal events
// and hands them to the applier. No business logic here.
//
// NOTE: this endpoint should be protected by Twilio signature validation in
// production.
type StatusWebhookHandler struct {
	Applier CallbackSink

	Now func() time.Time
}

func (h StatusWebhookHandler) HandleStatusCallback(c *gin.Context) {
	log := logger.FromGin(c)

	now := time.Now
	if h.Now != nil {
		now = h.Now
	}
	if h.Applier == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "callback applier not configured"})
		return
	}

	form, err := ParseTwilioStatusCallback(c.Request)
	if err != nil {
		log.Warn("twilio status callback parse failed", "err", err)
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid form"})
		return
	}

	cb, err := form.ToStatusCallback(now().UTC())
	if err != nil {
		log.Warn("twilio status callback rejected", "call_sid", form.CallSid, "status", form.CallStatus, "err", err)
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid callback"})
		return
	}

	applied, err := h.Applier.Apply(c.Request.Context(), cb)
	if err != nil {
		metrics.CallbacksTotal.WithLabelValues("error").Inc()
		log.Error("status callback apply failed", "provider_call_id", cb.ProviderCallID, "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "callback apply failed"})
		return
	}
	if applied {
		metrics.CallbacksTotal.WithLabelValues("applied").Inc()
	} else {
		metrics.CallbacksTotal.WithLabelValues("duplicate").Inc()
	}

	// Providers retry on non-2xx; duplicates are acknowledged as success.
	c.Status(http.StatusNoContent)
}
