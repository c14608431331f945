package http

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"hospital-assistant/internal/core"
	"hospital-assistant/internal/metrics"
	"hospital-assistant/pkg"
)

const wsWriteWait = 10 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// wsInbound is a client frame. Type selects which fields apply.
type wsInbound struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id,omitempty"`
	Message   string `json:"message,omitempty"`
	Phone     string `json:"phone,omitempty"`
	OTP       string `json:"otp,omitempty"`
}

// wsOutbound is a server frame.
type wsOutbound struct {
	Type        string            `json:"type"`
	SessionID   string            `json:"session_id,omitempty"`
	UserType    pkg.IdentityLevel `json:"user_type,omitempty"`
	Verified    *bool             `json:"verified,omitempty"`
	PatientName string            `json:"patient_name,omitempty"`
	PatientCode string            `json:"patient_code,omitempty"`
	Reply       string            `json:"reply,omitempty"`
	Success     *bool             `json:"success,omitempty"`
	Message     string            `json:"message,omitempty"`
	Status      *bool             `json:"status,omitempty"`
}

func flag(b bool) *bool { return &b }

// handleWebSocket serves the chat protocol on one connection. Frames are
// processed in order; the connection's session follows the latest reply.
func (s *Server) handleWebSocket(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.log.WithError(err).Warn("websocket upgrade failed")
		return
	}
	defer conn.Close()

	ip := c.ClientIP()
	ctx := c.Request.Context()
	sessionID := ""
	log := s.log.WithField("transport", "websocket")

	send := func(out wsOutbound) error {
		conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
		return conn.WriteJSON(out)
	}

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.WithError(err).Warn("websocket read failed")
			}
			log.WithField("session_id", sessionID).Debug("websocket closed")
			return
		}

		var in wsInbound
		if err := json.Unmarshal(data, &in); err != nil {
			if send(wsOutbound{Type: "error", Message: "Invalid message format."}) != nil {
				return
			}
			continue
		}
		if in.Type == "" {
			in.Type = "chat"
		}
		if in.Type == "ping" {
			if send(wsOutbound{Type: "pong"}) != nil {
				return
			}
			continue
		}
		if !s.apiLimiter.Allow(ip) {
			s.metrics.Inc(metrics.RateLimitedTotal)
			if send(wsOutbound{Type: "error", Message: "Too many requests. Please slow down."}) != nil {
				return
			}
			continue
		}

		var out wsOutbound
		switch in.Type {
		case "init":
			sess := s.orch.Sessions().ResolveOrCreate(in.SessionID)
			sessionID = sess.ID
			out = wsOutbound{Type: "init", SessionID: sess.ID, UserType: sess.Level, Verified: flag(sess.Verified)}
			if sess.Identity != nil {
				out.PatientName = sess.Identity.Name
			}

		case "login":
			resp, err := s.orch.StartLogin(ctx, in.Phone, sessionID)
			if err != nil {
				log.WithError(err).Error("websocket login failed")
				out = wsOutbound{Type: "error", Message: "Login is unavailable right now."}
				break
			}
			if resp.Success {
				sessionID = resp.SessionID
			}
			out = wsOutbound{Type: "login_response", Success: flag(resp.Success), Message: resp.Message, SessionID: resp.SessionID}

		case "verify_otp":
			resp, err := s.orch.VerifyLogin(ctx, in.Phone, in.OTP, sessionID)
			if err != nil {
				log.WithError(err).Error("websocket verify failed")
				out = wsOutbound{Type: "error", Message: "Verification is unavailable right now."}
				break
			}
			if resp.Success {
				sessionID = resp.SessionID
			}
			out = wsOutbound{
				Type:        "otp_response",
				Success:     flag(resp.Success),
				Message:     resp.Message,
				PatientName: resp.PatientName,
				PatientCode: resp.PatientCode,
			}

		case "chat":
			if strings.TrimSpace(in.Message) == "" {
				continue
			}
			if send(wsOutbound{Type: "typing", Status: flag(true)}) != nil {
				return
			}
			resp, err := s.orch.Process(ctx, core.Message{Text: in.Message, SessionID: sessionID, Channel: pkg.ChannelWeb})
			if err != nil {
				log.WithError(err).Error("websocket chat failed")
				out = wsOutbound{Type: "error", Message: "An error occurred. Please refresh."}
				break
			}
			sessionID = resp.SessionID
			out = wsOutbound{
				Type:      "chat_response",
				Reply:     resp.Reply,
				SessionID: resp.SessionID,
				UserType:  resp.UserType,
				Verified:  flag(resp.Verified),
			}

		default:
			out = wsOutbound{Type: "error", Message: "Unknown message type."}
		}

		if err := send(out); err != nil {
			log.WithFields(logrus.Fields{"session_id": sessionID}).WithError(err).Warn("websocket write failed")
			return
		}
	}
}
