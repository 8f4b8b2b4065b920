package core

// Command is the decoded form of a payload received on the command topic.
type Command int

const (
	// CommandUnrecognized is any payload that is not a known command. It is ignored.
	CommandUnrecognized Command = iota
	// CommandExternal switches to the external display.
	CommandExternal
	// CommandInternal switches to the internal display.
	CommandInternal
)

// Wire literals of the command topic.
const (
	PayloadExternal = "external"
	PayloadInternal = "internal"
)

// ParseCommand decodes a command payload. Only the exact literals are recognized.
func ParseCommand(payload []byte) Command {
	switch string(payload) {
	case PayloadExternal:
		return CommandExternal
	case PayloadInternal:
		return CommandInternal
	default:
		return CommandUnrecognized
	}
}

func (c Command) String() string {
	switch c {
	case CommandExternal:
		return "external"
	case CommandInternal:
		return "internal"
	default:
		return "unrecognized"
	}
}
