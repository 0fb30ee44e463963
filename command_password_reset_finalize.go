package auth

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

// FinalizePasswordResetMessage sets a new password using a reset token
type FinalizePasswordResetMessage struct {
	Token           string `json:"token" doc:"Reset password token"`
	Password        string `json:"newPassword" example:"some_secret_word" doc:"New password"`
	ConfirmPassword string `json:"confirmPassword" example:"some_secret_word" doc:"New password confirmation"`
}

func (p FinalizePasswordResetMessage) Type() string { return "user.password_reset.finalize" }

// FinalizePasswordResetHandler runs ResetTokenFlow.ConsumeReset
type FinalizePasswordResetHandler struct {
	flow    *ResetTokenFlow
	logger  Logger
	timeout time.Duration
}

// NewFinalizePasswordResetHandler creates a handler with sane defaults.
func NewFinalizePasswordResetHandler(flow *ResetTokenFlow) *FinalizePasswordResetHandler {
	return &FinalizePasswordResetHandler{
		flow:    flow,
		logger:  defLogger{},
		timeout: 10 * time.Second,
	}
}

// WithLogger overrides the logger used by the handler.
func (h *FinalizePasswordResetHandler) WithLogger(logger Logger) *FinalizePasswordResetHandler {
	h.logger = normalizeLogger(logger)
	return h
}

func (h *FinalizePasswordResetHandler) Execute(ctx context.Context, event FinalizePasswordResetMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during password reset finalization",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *FinalizePasswordResetHandler) execute(ctx context.Context, event FinalizePasswordResetMessage) error {
	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	if err := h.flow.ConsumeReset(ctx, event.Token, event.Password, event.ConfirmPassword); err != nil {
		h.logger.Debug("password reset finalize rejected", "reason", TextCodeOf(err))
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return richErr
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to finalize password reset")
	}

	h.logger.Info("password reset finalized")
	return nil
}
