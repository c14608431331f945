package http

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/twilio/twilio-go/twiml"

	"hospital-assistant/internal/voice"
)

const (
	ttsVoice    = "Google.en-IN-Neural2-A"
	ttsLanguage = "en-IN"
)

// actionURL maps a webhook action onto the public /voice route.
func (s *Server) actionURL(a voice.Action) string {
	return strings.TrimRight(s.cfg.PublicBaseURL, "/") + "/voice/" + string(a)
}

func itoa(n int) string {
	if n <= 0 {
		return ""
	}
	return strconv.Itoa(n)
}

func (s *Server) say(text string) *twiml.VoiceSay {
	return &twiml.VoiceSay{Message: text, Voice: ttsVoice, Language: ttsLanguage}
}

// renderTwiML converts call-control instructions to a TwiML document.
func (s *Server) renderTwiML(r voice.Response) (string, error) {
	verbs := make([]twiml.Element, 0, len(r.Instructions))
	for _, in := range r.Instructions {
		switch v := in.(type) {
		case voice.Say:
			verbs = append(verbs, s.say(v.Text))
		case voice.Pause:
			verbs = append(verbs, &twiml.VoicePause{Length: itoa(v.Seconds)})
		case voice.Gather:
			g := &twiml.VoiceGather{
				Action:      s.actionURL(v.Action),
				Method:      http.MethodPost,
				Input:       string(v.Input),
				Language:    ttsLanguage,
				Timeout:     itoa(v.Timeout),
				NumDigits:   itoa(v.NumDigits),
				FinishOnKey: v.FinishOnKey,
				SpeechModel: v.SpeechModel,
			}
			if v.Input == voice.InputSpeechAndDTMF {
				g.SpeechTimeout = "auto"
			}
			if v.Prompt != "" {
				g.InnerElements = []twiml.Element{s.say(v.Prompt)}
			}
			verbs = append(verbs, g)
		case voice.Dial:
			verbs = append(verbs, &twiml.VoiceDial{Number: v.Number, CallerId: v.CallerID, Timeout: itoa(v.Timeout)})
		case voice.Redirect:
			verbs = append(verbs, &twiml.VoiceRedirect{Url: s.actionURL(v.Action), Method: http.MethodPost})
		case voice.Hangup:
			verbs = append(verbs, &twiml.VoiceHangup{})
		default:
			return "", fmt.Errorf("unsupported instruction %T", in)
		}
	}
	return twiml.Voice(verbs)
}

func (s *Server) writeTwiML(c *gin.Context, r voice.Response) {
	doc, err := s.renderTwiML(r)
	if err != nil {
		s.log.WithError(err).Error("render twiml failed")
		c.Status(http.StatusInternalServerError)
		return
	}
	c.Data(http.StatusOK, "application/xml", []byte(doc))
}

func (s *Server) handleVoiceIncoming(c *gin.Context) {
	callID := c.PostForm("CallSid")
	if callID == "" {
		sendProblem(c, http.StatusBadRequest, "CallSid is required")
		return
	}
	s.writeTwiML(c, s.voice.Start(c.Request.Context(), callID, c.PostForm("From")))
}

// handleVoiceTurn serves every gather callback. The call's state, not the
// route, decides how the input is interpreted.
func (s *Server) handleVoiceTurn(c *gin.Context) {
	confidence, _ := strconv.ParseFloat(c.PostForm("Confidence"), 64)
	s.writeTwiML(c, s.voice.HandleTurn(c.Request.Context(), voice.TurnEvent{
		CallID:     c.PostForm("CallSid"),
		Speech:     c.PostForm("SpeechResult"),
		Confidence: confidence,
		Digits:     c.PostForm("Digits"),
	}))
}

func (s *Server) handleVoiceStatus(c *gin.Context) {
	secs, _ := strconv.Atoi(c.PostForm("CallDuration"))
	s.voice.Status(c.PostForm("CallSid"), c.PostForm("CallStatus"), time.Duration(secs)*time.Second)
	c.Status(http.StatusOK)
}
