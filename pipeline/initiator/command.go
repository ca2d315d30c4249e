package initiator

import (
	"fmt"
	"strings"

	"github.com/meridian-quant/flowcore/eventbus"
	"github.com/meridian-quant/flowcore/pipeline/envelope"
)

// Operator actions the command initiator accepts.
const (
	CommandStopAll = "stop_all"
	CommandPause   = "pause"
	CommandResume  = "resume"
	CommandFlatten = "flatten"
)

var knownCommands = map[string]struct{}{
	CommandStopAll: {},
	CommandPause:   {},
	CommandResume:  {},
	CommandFlatten: {},
}

// ParsedCommand is the command initiator's stage input.
type ParsedCommand struct {
	Action string            `json:"action"`
	Args   map[string]string `json:"args,omitempty"`
}

// UserCommandInitiator routes operator commands into flows. Unknown actions
// are vetoed rather than guessed at.
type UserCommandInitiator struct{}

// NewUserCommandInitiator creates a user-command initiator.
func NewUserCommandInitiator() *UserCommandInitiator {
	return &UserCommandInitiator{}
}

// MatchedCategory implements Initiator.
func (i *UserCommandInitiator) MatchedCategory() envelope.Category {
	return envelope.CategoryUserCommand
}

// StartSignalName implements Initiator.
func (i *UserCommandInitiator) StartSignalName() string {
	return eventbus.SignalFlowStartCommand
}

// ShouldStart vetoes unknown actions.
func (i *UserCommandInitiator) ShouldStart(payload any) (bool, string) {
	cmd, ok := payload.(envelope.UserCommandPayload)
	if !ok {
		return false, "malformed_command_payload"
	}
	if _, known := knownCommands[normalizeAction(cmd.Action)]; !known {
		return false, "unknown_command"
	}
	return true, ""
}

// Transform implements Initiator.
func (i *UserCommandInitiator) Transform(payload any) (any, error) {
	cmd, ok := payload.(envelope.UserCommandPayload)
	if !ok {
		return nil, fmt.Errorf("unexpected command payload type %T", payload)
	}
	return ParsedCommand{
		Action: normalizeAction(cmd.Action),
		Args:   cmd.Args,
	}, nil
}

func normalizeAction(action string) string {
	return strings.ToLower(strings.TrimSpace(action))
}

var _ Initiator = (*UserCommandInitiator)(nil)
