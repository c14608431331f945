package voice

// Action names the webhook a telephony provider should call back.
type Action string

const (
	ActionIncoming   Action = "incoming"
	ActionRespond    Action = "respond"
	ActionLoginInput Action = "login-input"
	ActionVerifyOTP  Action = "verify-otp"
)

// Input selects what a Gather listens for.
type Input string

const (
	InputSpeechAndDTMF Input = "speech dtmf"
	InputDTMF          Input = "dtmf"
)

// Instruction is one call-control verb.
type Instruction interface {
	instruction()
}

// Say speaks text.
type Say struct {
	Text string
}

// Gather speaks Prompt and collects the next turn, posting it to Action.
type Gather struct {
	Action      Action
	Input       Input
	Prompt      string
	Timeout     int
	NumDigits   int
	FinishOnKey string
	SpeechModel string
}

// Dial transfers the call.
type Dial struct {
	Number   string
	CallerID string
	Timeout  int
}

// Pause waits before the next verb.
type Pause struct {
	Seconds int
}

// Redirect continues the call at Action.
type Redirect struct {
	Action Action
}

// Hangup ends the call.
type Hangup struct{}

func (Say) instruction()      {}
func (Gather) instruction()   {}
func (Dial) instruction()     {}
func (Pause) instruction()    {}
func (Redirect) instruction() {}
func (Hangup) instruction()   {}

// Response is the ordered instruction list for one turn.
type Response struct {
	Instructions []Instruction
}

func (r *Response) add(in ...Instruction) *Response {
	r.Instructions = append(r.Instructions, in...)
	return r
}

// Ends reports whether the response hangs up or transfers the call.
func (r Response) Ends() bool {
	for _, in := range r.Instructions {
		switch in.(type) {
		case Hangup, Dial:
			return true
		}
	}
	return false
}

// Spoken concatenates every spoken text, prompts included.
func (r Response) Spoken() []string {
	var out []string
	for _, in := range r.Instructions {
		switch v := in.(type) {
		case Say:
			out = append(out, v.Text)
		case Gather:
			if v.Prompt != "" {
				out = append(out, v.Prompt)
			}
		}
	}
	return out
}

const (
	speechTimeout = 8
	otpTimeout    = 15
	dialTimeout   = 30
	otpDigits     = 6
)

// gatherSpeech collects speech or keypad input, and re-enters Action with
// an empty turn when the caller stays silent.
func gatherSpeech(action Action, prompt string) Response {
	var r Response
	r.add(
		Gather{Action: action, Input: InputSpeechAndDTMF, Prompt: prompt, Timeout: speechTimeout, SpeechModel: "phone_call"},
		Say{Text: "I didn't catch that. Let me try again."},
		Redirect{Action: action},
	)
	return r
}

// gatherOTP collects a keypad passcode terminated by '#'.
func gatherOTP(prompt string) Response {
	var r Response
	r.add(
		Gather{Action: ActionVerifyOTP, Input: InputDTMF, Prompt: prompt, Timeout: otpTimeout, NumDigits: otpDigits, FinishOnKey: "#"},
		Say{Text: "I didn't receive any input."},
		Redirect{Action: ActionVerifyOTP},
	)
	return r
}

func farewell(text string) Response {
	var r Response
	r.add(Say{Text: text}, Hangup{})
	return r
}
