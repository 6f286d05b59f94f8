package proto

import (
	"errors"
	"strings"
)

// CommandKind tags the shape of a parsed line.
type CommandKind int

const (
	// CommandChat is any line that is not a recognized command.
	CommandChat CommandKind = iota
	// CommandLogin registers or authenticates: /login <nickname> <password>.
	CommandLogin
	// CommandJoin switches presence to a room: /join <room>.
	CommandJoin
	// CommandList lists available rooms with unread counts: /list.
	CommandList
	// CommandCreateRoom creates a multi-participant room: /createRoom <name> <public|private> [nickname...].
	CommandCreateRoom
	// CommandHelp lists the commands: /help.
	CommandHelp
)

// Command tokens. Matching is case-sensitive.
const (
	TokenLogin      = "/login"
	TokenJoin       = "/join"
	TokenList       = "/list"
	TokenCreateRoom = "/createRoom"
	TokenHelp       = "/help"
)

const (
	VisibilityPublic  = "public"
	VisibilityPrivate = "private"
)

// Usage strings reported with malformed commands.
const (
	UsageLogin      = TokenLogin + " <nickname> <password>"
	UsageJoin       = TokenJoin + " <room>"
	UsageList       = TokenList
	UsageCreateRoom = TokenCreateRoom + " <name> <public|private> [nickname...]"
	UsageHelp       = TokenHelp
)

// ErrMalformed matches every *MalformedError.
var ErrMalformed = errors.New("malformed command")

// MalformedError reports a recognized command with missing or invalid arguments.
type MalformedError struct {
	Kind  CommandKind
	Usage string
}

func (e *MalformedError) Error() string {
	return "malformed command, usage: " + e.Usage
}

// Is lets errors.Is(err, ErrMalformed) match.
func (e *MalformedError) Is(target error) bool {
	return target == ErrMalformed
}

// Command is a parsed protocol line. Which fields are set depends on Kind.
type Command struct {
	Kind     CommandKind
	Nickname string
	Password string
	Room     string
	Public   bool
	Members  []string
	Text     string
}

// Parse turns one line (terminator already stripped) into a Command.
// It performs no I/O.
func Parse(line string) (*Command, error) {
	line = strings.TrimSpace(line)
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return &Command{Kind: CommandChat, Text: line}, nil
	}

	args := fields[1:]
	switch fields[0] {
	case TokenLogin:
		if len(args) != 2 {
			return nil, &MalformedError{Kind: CommandLogin, Usage: UsageLogin}
		}
		return &Command{Kind: CommandLogin, Nickname: args[0], Password: args[1]}, nil

	case TokenJoin:
		if len(args) != 1 {
			return nil, &MalformedError{Kind: CommandJoin, Usage: UsageJoin}
		}
		return &Command{Kind: CommandJoin, Room: args[0]}, nil

	case TokenList:
		if len(args) != 0 {
			return nil, &MalformedError{Kind: CommandList, Usage: UsageList}
		}
		return &Command{Kind: CommandList}, nil

	case TokenCreateRoom:
		if len(args) < 2 {
			return nil, &MalformedError{Kind: CommandCreateRoom, Usage: UsageCreateRoom}
		}
		var public bool
		switch args[1] {
		case VisibilityPublic:
			public = true
		case VisibilityPrivate:
		default:
			return nil, &MalformedError{Kind: CommandCreateRoom, Usage: UsageCreateRoom}
		}
		return &Command{
			Kind:    CommandCreateRoom,
			Room:    args[0],
			Public:  public,
			Members: args[2:],
		}, nil

	case TokenHelp:
		if len(args) != 0 {
			return nil, &MalformedError{Kind: CommandHelp, Usage: UsageHelp}
		}
		return &Command{Kind: CommandHelp}, nil

	default:
		return &Command{Kind: CommandChat, Text: line}, nil
	}
}
