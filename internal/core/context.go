package core

import (
	"fmt"
	"strings"

	"hospital-assistant/internal/knowledge"
	"hospital-assistant/internal/session"
)

const guestStatus = "[SYSTEM CONTEXT] User is a GUEST (not logged in). " +
	"They can only ask general questions. For personalized services, " +
	"ask them to login using the login button with their registered phone number."

// BuildContext renders the message sent to the engine for one turn: the
// identity status line, any retrieved knowledge, then the user's text.
func BuildContext(sess session.Session, snippets []knowledge.Snippet, text string) string {
	var b strings.Builder
	if sess.Verified && sess.Identity != nil {
		fmt.Fprintf(&b, "[SYSTEM CONTEXT] User is VERIFIED as: %s (Patient ID: %d, Code: %s). They can use all tools.",
			sess.Identity.Name, sess.Identity.PatientID, sess.Identity.PatientCode)
	} else {
		b.WriteString(guestStatus)
	}

	if len(snippets) > 0 {
		b.WriteString("\n\n[HOSPITAL KNOWLEDGE BASE - Use this to answer questions]")
		for _, s := range snippets {
			fmt.Fprintf(&b, "\nSource: %s (relevance: %g)\n%s\n---", s.Source, s.Score, s.Content)
		}
	}

	fmt.Fprintf(&b, "\n\n[USER MESSAGE] %s", text)
	return b.String()
}
