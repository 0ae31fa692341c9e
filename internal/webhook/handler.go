package webhook

import (
	"context"
	"io"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/gebeya-labs/identity-sync/internal/identity"
)

// headerEventID is the delivery id set by the provider's webhook relay,
// stable across redeliveries of the same event.
const headerEventID = "svix-id"

// Reconciler is the event sink behind the ingress.
type Reconciler interface {
	Handle(ctx context.Context, ev identity.Event) identity.Outcome
}

// Verifier authenticates a delivery before the body is trusted. Signature
// checking itself belongs to an external collaborator; the default AcceptAll
// is for deployments where the relay in front of this service verifies.
type Verifier interface {
	Verify(headers http.Header, body []byte) error
}

// AcceptAll is a Verifier that trusts every delivery.
type AcceptAll struct{}

func (AcceptAll) Verify(http.Header, []byte) error { return nil }

// Handler is the provider-event HTTP ingress.
type Handler struct {
	reconciler Reconciler
	dedup      Deduper
	verifier   Verifier
	logger     *slog.Logger
}

// NewHandler builds the ingress. dedup may be nil to disable delivery
// dedup; verifier may be nil to accept all deliveries.
func NewHandler(reconciler Reconciler, dedup Deduper, verifier Verifier, logger *slog.Logger) *Handler {
	if verifier == nil {
		verifier = AcceptAll{}
	}
	return &Handler{
		reconciler: reconciler,
		dedup:      dedup,
		verifier:   verifier,
		logger:     logger,
	}
}

// RegisterRoutes mounts the webhook endpoint.
func (h *Handler) RegisterRoutes(r *gin.Engine) {
	r.POST("/api/webhook/identity", h.handleEvent)
	r.GET("/api/webhook/identity", func(c *gin.Context) {
		c.String(http.StatusOK, "Webhook endpoint is working, but expects POST requests")
	})
}

// handleEvent maps reconciler outcomes onto the delivery contract: 2xx
// acknowledges durable processing, non-2xx requests redelivery.
func (h *Handler) handleEvent(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read body"})
		return
	}

	if err := h.verifier.Verify(c.Request.Header, body); err != nil {
		h.logger.Warn("webhook verification failed", "error", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "verification failed"})
		return
	}

	if err := validateEnvelope(body); err != nil {
		h.logger.Warn("malformed webhook payload", "error", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ev, err := parseEvent(body)
	if err != nil {
		h.logger.Warn("undecodable webhook payload", "error", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	eventID := c.GetHeader(headerEventID)
	if eventID != "" && h.dedup != nil && h.dedup.Seen(c.Request.Context(), eventID) {
		c.JSON(http.StatusOK, gin.H{"message": "duplicate delivery acknowledged"})
		return
	}

	outcome := h.reconciler.Handle(c.Request.Context(), ev)
	switch {
	case outcome.OK:
		if eventID != "" && h.dedup != nil {
			h.dedup.Mark(c.Request.Context(), eventID)
		}
		c.JSON(http.StatusOK, gin.H{"message": outcome.Detail})
	case outcome.Retryable:
		h.logger.Error("event processing incomplete",
			"event_id", eventID,
			"external_id", ev.ExternalID(),
			"detail", outcome.Detail,
		)
		c.JSON(http.StatusInternalServerError, gin.H{"error": outcome.Detail})
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": outcome.Detail})
	}
}
