package dispatch

import (
	"fmt"
	"time"
)

// State is a step of the per-invocation state machine.
type State uint8

const (
	Received State = iota
	Validated
	CooldownChecked
	Executing
	Completed
	Failed
	Blocked
)

var stateNames = [...]string{
	Received:        "received",
	Validated:       "validated",
	CooldownChecked: "cooldown-checked",
	Executing:       "executing",
	Completed:       "completed",
	Failed:          "failed",
	Blocked:         "blocked",
}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("State(%d)", s)
}

// Terminal reports whether s ends an invocation.
func (s State) Terminal() bool { return s >= Completed }

// Reason qualifies a Failed outcome.
type Reason string

const (
	ReasonNone             Reason = ""
	ReasonNotReady         Reason = "NotReady"
	ReasonUnknownCommand   Reason = "UnknownCommand"
	ReasonPluginDisabled   Reason = "PluginDisabled"
	ReasonInvalidArguments Reason = "InvalidArguments"
	ReasonHandlerFault     Reason = "HandlerFault"
)

// Outcome is the terminal result of one Handle call.
type Outcome struct {
	State         State
	Reason        Reason
	Remaining     time.Duration // wait left when Blocked
	CorrelationID string
	Command       string
	Err           error
	Duration      time.Duration
}

// Message is the user-facing text for a Blocked or Failed outcome.
func (o Outcome) Message() string {
	if o.State == Blocked {
		return fmt.Sprintf("You can use `/%s` again in %s.", o.Command, roundUp(o.Remaining))
	}
	if o.State != Failed {
		return ""
	}
	switch o.Reason {
	case ReasonNotReady:
		return "I'm not done getting ready yet, try again in a moment."
	case ReasonUnknownCommand:
		return fmt.Sprintf("Unknown command `/%s`.", o.Command)
	case ReasonPluginDisabled:
		return fmt.Sprintf("`/%s` belongs to a plugin that is disabled in this server.", o.Command)
	case ReasonInvalidArguments:
		if o.Err != nil {
			return o.Err.Error()
		}
		return "Invalid arguments."
	default:
		return fmt.Sprintf("Something went wrong while running `/%s`. Reference: `%s`", o.Command, o.CorrelationID)
	}
}

// roundUp renders d in whole seconds, never showing zero for a positive wait.
func roundUp(d time.Duration) time.Duration {
	r := d.Truncate(time.Second)
	if r < d {
		r += time.Second
	}
	return r
}
