package handler

import (
	"context"

	"custodial-wallet-engine/internal/adapter/http/dto"
	"custodial-wallet-engine/internal/service"
	"custodial-wallet-engine/pkg/apperror"
	"custodial-wallet-engine/pkg/response"

	"github.com/gin-gonic/gin"
)

// CommandDispatcher runs one chat command and returns the replies it delivered.
type CommandDispatcher interface {
	Dispatch(ctx context.Context, cmd service.Command) []string
}

// CommandHandler handles the gateway command endpoint.
type CommandHandler struct {
	dispatcher CommandDispatcher
}

// NewCommandHandler creates a new CommandHandler.
func NewCommandHandler(dispatcher CommandDispatcher) *CommandHandler {
	return &CommandHandler{dispatcher: dispatcher}
}

// Handle handles POST /api/v1/commands. Command failures are replies, not HTTP errors,
// so any request that passes validation gets a 200.
func (h *CommandHandler) Handle(c *gin.Context) {
	var req dto.CommandRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}
	dto.SanitizeStruct(&req)

	replies := h.dispatcher.Dispatch(c.Request.Context(), service.Command{
		UserID:   req.UserID,
		Username: req.Username,
		Content:  req.Content,
	})

	response.OK(c, dto.CommandResponse{UserID: req.UserID, Replies: replies})
}
