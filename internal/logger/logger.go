// Package logger builds the process logger. Every entry is passed through a
// masking formatter so phone numbers, patient codes and passcodes never reach
// the log sink in clear text.
package logger

import (
	"io"
	"os"
	"regexp"
	"strings"

	"github.com/sirupsen/logrus"
)

type phiPattern struct {
	re   *regexp.Regexp
	repl string
}

var phiPatterns = []phiPattern{
	{regexp.MustCompile(`\+91\d{10}`), "[PHONE_REDACTED]"},
	{regexp.MustCompile(`\b\d{10}\b`), "[PHONE_REDACTED]"},
	{regexp.MustCompile(`CGH-\d{4,5}`), "[PATIENT_CODE_REDACTED]"},
	{regexp.MustCompile(`(?i)otp[:\s]+\d{6}`), "OTP: [OTP_REDACTED]"},
}

// MaskPHI redacts protected health identifiers from s.
func MaskPHI(s string) string {
	for _, p := range phiPatterns {
		s = p.re.ReplaceAllString(s, p.repl)
	}
	return s
}

// MaskingFormatter wraps another formatter and masks the message and every
// string field before delegating.
type MaskingFormatter struct {
	Inner logrus.Formatter
}

func (f *MaskingFormatter) Format(e *logrus.Entry) ([]byte, error) {
	data := make(logrus.Fields, len(e.Data))
	for k, v := range e.Data {
		if s, ok := v.(string); ok {
			v = MaskPHI(s)
		}
		data[k] = v
	}
	masked := &logrus.Entry{
		Logger:  e.Logger,
		Data:    data,
		Time:    e.Time,
		Level:   e.Level,
		Caller:  e.Caller,
		Message: MaskPHI(e.Message),
		Context: e.Context,
	}
	return f.Inner.Format(masked)
}

// New returns a logger writing to stdout at the given level. format "json"
// selects the JSON formatter, anything else the text formatter.
func New(level, format string) *logrus.Logger {
	return NewWithWriter(os.Stdout, level, format)
}

// NewWithWriter is New with an explicit sink.
func NewWithWriter(w io.Writer, level, format string) *logrus.Logger {
	l := logrus.New()
	l.SetOutput(w)

	var inner logrus.Formatter = &logrus.TextFormatter{FullTimestamp: true}
	if strings.EqualFold(format, "json") {
		inner = &logrus.JSONFormatter{}
	}
	l.SetFormatter(&MaskingFormatter{Inner: inner})

	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	l.SetLevel(lvl)
	return l
}

// Discard returns a logger that drops everything. Used by tests.
func Discard() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}
