package auth

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

// InitializePasswordResetMessage requests a reset link for Email
type InitializePasswordResetMessage struct {
	Email      string `json:"email" example:"pepe.rone@example.com" doc:"Account email."`
	OnResponse func(resp *InitializePasswordResetResponse)
}

func (p InitializePasswordResetMessage) Type() string { return "user.password_reset.initialize" }

// InitializePasswordResetResponse reports the outcome of a reset request.
// Delivered is false when the token was issued but the email failed.
type InitializePasswordResetResponse struct {
	Email     string
	ExpiresAt time.Time
	Delivered bool
}

// InitializePasswordResetHandler runs ResetTokenFlow.RequestReset
type InitializePasswordResetHandler struct {
	flow    *ResetTokenFlow
	logger  Logger
	timeout time.Duration
}

// NewInitializePasswordResetHandler creates a handler for flow
func NewInitializePasswordResetHandler(flow *ResetTokenFlow) *InitializePasswordResetHandler {
	return &InitializePasswordResetHandler{
		flow:    flow,
		logger:  defLogger{},
		timeout: 10 * time.Second,
	}
}

// WithLogger overrides the logger used by the handler.
func (h *InitializePasswordResetHandler) WithLogger(logger Logger) *InitializePasswordResetHandler {
	h.logger = normalizeLogger(logger)
	return h
}

// WithTimeout bounds the directory lookup and mail delivery
func (h *InitializePasswordResetHandler) WithTimeout(timeout time.Duration) *InitializePasswordResetHandler {
	if timeout > 0 {
		h.timeout = timeout
	}
	return h
}

func (h *InitializePasswordResetHandler) Execute(ctx context.Context, event InitializePasswordResetMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during password reset initialization",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *InitializePasswordResetHandler) execute(ctx context.Context, event InitializePasswordResetMessage) error {
	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	issued, err := h.flow.RequestReset(ctx, event.Email)
	resp := &InitializePasswordResetResponse{
		Email:     issued.Subject,
		ExpiresAt: issued.ExpiresAt,
		Delivered: err == nil,
	}

	if err != nil && !IsDeliveryFailedError(err) {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return richErr
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to initialize password reset")
	}

	if event.OnResponse != nil {
		event.OnResponse(resp)
	}

	return err
}
