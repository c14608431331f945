package http

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"hospital-assistant/internal/core"
	"hospital-assistant/internal/db"
	"hospital-assistant/pkg"
)

// handleChat runs one message through the dialog pipeline.
func (s *Server) handleChat(c *gin.Context) {
	var req pkg.ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		sendProblem(c, http.StatusBadRequest, "message is required")
		return
	}
	resp, err := s.orch.Process(c.Request.Context(), core.Message{
		Text:      req.Message,
		SessionID: req.SessionID,
		Channel:   pkg.ChannelWeb,
	})
	switch {
	case errors.Is(err, core.ErrEmptyMessage):
		sendProblem(c, http.StatusBadRequest, "message is required")
		return
	case err != nil:
		s.log.WithError(err).Error("chat failed")
		sendProblem(c, http.StatusInternalServerError, "The assistant could not process the message.")
		return
	}
	c.JSON(http.StatusOK, resp)
}

// handleLogin issues a passcode for a registered phone number.
func (s *Server) handleLogin(c *gin.Context) {
	var req pkg.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		sendProblem(c, http.StatusBadRequest, "phone is required")
		return
	}
	resp, err := s.orch.StartLogin(c.Request.Context(), req.Phone, req.SessionID)
	if err != nil {
		s.log.WithError(err).Error("login failed")
		sendProblem(c, http.StatusInternalServerError, "Login is unavailable right now.")
		return
	}
	c.JSON(http.StatusOK, resp)
}

// handleVerifyOTP escalates the session when the passcode matches.
func (s *Server) handleVerifyOTP(c *gin.Context) {
	var req pkg.OTPVerifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		sendProblem(c, http.StatusBadRequest, "phone, otp and session_id are required")
		return
	}
	resp, err := s.orch.VerifyLogin(c.Request.Context(), req.Phone, req.OTP, req.SessionID)
	if err != nil {
		s.log.WithError(err).Error("verify otp failed")
		sendProblem(c, http.StatusInternalServerError, "Verification is unavailable right now.")
		return
	}
	c.JSON(http.StatusOK, resp)
}

// handleAudit lists tool invocation records, newest first.
func (s *Server) handleAudit(c *gin.Context) {
	f := db.AuditFilter{
		SessionID: c.Query("session_id"),
		ToolName:  c.Query("tool"),
	}
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			sendProblem(c, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		f.Limit = n
	}
	records, err := s.audit.ListToolInvocations(c.Request.Context(), f)
	if err != nil {
		s.log.WithError(err).Error("list audit failed")
		sendProblem(c, http.StatusInternalServerError, "could not list audit records")
		return
	}
	if records == nil {
		records = []pkg.ToolInvocation{}
	}
	c.JSON(http.StatusOK, gin.H{"records": records, "count": len(records)})
}
