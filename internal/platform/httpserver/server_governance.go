package httpserver

import (
	"errors"
	"net/http"

	domainerrors "fangov/contexts/governance/proposal-engine/domain/errors"
	governancehttp "fangov/contexts/governance/proposal-engine/transport/http"

	"github.com/gin-gonic/gin"
)

func (s *Server) handleCreateProposal(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	var req governancehttp.CreateProposalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid_json", err.Error())
		return
	}
	resp, err := s.governance.Handler.CreateProposalHandler(c.Request.Context(), userID, req)
	if err != nil {
		s.writeDomainError(c, err)
		return
	}
	c.JSON(http.StatusCreated, resp)
}

func (s *Server) handleGetProposal(c *gin.Context) {
	resp, err := s.governance.Handler.GetProposalHandler(c.Request.Context(), c.Param("proposal_id"))
	if err != nil {
		s.writeDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleAddOption(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	var req governancehttp.OptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid_json", err.Error())
		return
	}
	resp, err := s.governance.Handler.AddOptionHandler(c.Request.Context(), userID, c.Param("proposal_id"), req)
	if err != nil {
		s.writeDomainError(c, err)
		return
	}
	c.JSON(http.StatusCreated, resp)
}

func (s *Server) handleDeleteOption(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	err := s.governance.Handler.DeleteOptionHandler(
		c.Request.Context(),
		userID,
		c.Param("proposal_id"),
		c.Param("option_id"),
	)
	if err != nil {
		s.writeDomainError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handleOpen(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	resp, err := s.governance.Handler.OpenProposalHandler(c.Request.Context(), userID, c.Param("proposal_id"))
	if err != nil {
		s.writeDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleClose(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	resp, err := s.governance.Handler.CloseProposalHandler(c.Request.Context(), userID, c.Param("proposal_id"))
	if err != nil {
		s.writeDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleFinalize(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	resp, err := s.governance.Handler.FinalizeProposalHandler(c.Request.Context(), userID, c.Param("proposal_id"))
	if err != nil {
		s.writeDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleCastVote(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	var req governancehttp.CastVoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid_json", err.Error())
		return
	}
	resp, err := s.governance.Handler.CastVoteHandler(c.Request.Context(), userID, c.Param("proposal_id"), req)
	if err != nil {
		s.writeDomainError(c, err)
		return
	}
	c.JSON(http.StatusCreated, resp)
}

func (s *Server) handleResults(c *gin.Context) {
	resp, err := s.governance.Handler.ResultsHandler(c.Request.Context(), c.Param("proposal_id"))
	if err != nil {
		s.writeDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// writeDomainError maps module errors to HTTP. Rule violations carry
// user-facing messages and are passed through verbatim.
func (s *Server) writeDomainError(c *gin.Context, err error) {
	var validation *domainerrors.ValidationError
	switch {
	case errors.As(err, &validation):
		writeError(c, http.StatusUnprocessableEntity, "validation_failed", validation.Message)
	case errors.Is(err, domainerrors.ErrActorRequired):
		writeError(c, http.StatusUnauthorized, "missing_user", err.Error())
	case errors.Is(err, domainerrors.ErrInvalidProposalInput):
		writeError(c, http.StatusBadRequest, "invalid_input", err.Error())
	case errors.Is(err, domainerrors.ErrProposalNotFound):
		writeError(c, http.StatusNotFound, "proposal_not_found", err.Error())
	case errors.Is(err, domainerrors.ErrOptionNotFound):
		writeError(c, http.StatusNotFound, "option_not_found", err.Error())
	case errors.Is(err, domainerrors.ErrResultsNotVisible):
		writeError(c, http.StatusForbidden, "results_not_visible", err.Error())
	case errors.Is(err, domainerrors.ErrAlreadyVoted):
		writeError(c, http.StatusConflict, "already_voted", err.Error())
	case errors.Is(err, domainerrors.ErrStatusConflict):
		writeError(c, http.StatusConflict, "status_conflict", err.Error())
	case errors.Is(err, domainerrors.ErrConflict):
		writeError(c, http.StatusConflict, "conflict", err.Error())
	default:
		s.logger.Error("governance request failed",
			"event", "http_governance_request_failed",
			"module", "internal/platform/httpserver",
			"layer", "platform",
			"route", c.FullPath(),
			"error", err.Error(),
		)
		writeError(c, http.StatusInternalServerError, "internal_error", "internal server error")
	}
}

func writeError(c *gin.Context, status int, code string, message string) {
	c.AbortWithStatusJSON(status, governancehttp.ErrorResponse{
		Code:    code,
		Message: message,
	})
}
