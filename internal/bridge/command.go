package bridge

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/DobryySoul/recipeshare/internal/recipe"
)

// Kind identifies a parsed command.
type Kind int

const (
	ListPublic Kind = iota + 1
	ListPeers
	ListPeer
	Publish
	Create
	Quit
)

func (k Kind) String() string {
	switch k {
	case ListPublic:
		return "ls_all"
	case ListPeers:
		return "ls_peers"
	case ListPeer:
		return "ls_peer"
	case Publish:
		return "publish"
	case Create:
		return "create"
	case Quit:
		return "quit"
	default:
		return "invalid"
	}
}

// ErrInvalidCommand is returned for lines that name no known command.
var ErrInvalidCommand = errors.New("bridge: invalid command")

// ProtocolError reports a known command with malformed arguments.
type ProtocolError struct {
	Command string
	Reason  string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("bridge: malformed %s command: %s", e.Command, e.Reason)
}

// Command is one parsed command line.
type Command struct {
	Kind   Kind
	ID     uint64
	Peer   string
	Recipe recipe.Record
}

// Parse turns a command line into a Command.
//
//	ls r all
//	ls r <peer>
//	ls p
//	publish r <id>
//	create r <name>|<ingredients>|<instructions>
//	quit
func Parse(line string) (Command, error) {
	line = strings.TrimSpace(line)
	parts := strings.Fields(line)
	if len(parts) == 0 {
		return Command{}, ErrInvalidCommand
	}

	switch parts[0] {
	case "ls":
		return parseList(parts)
	case "publish":
		return parsePublish(parts)
	case "create":
		return parseCreate(line, parts)
	case "quit", "exit":
		if len(parts) != 1 {
			return Command{}, &ProtocolError{Command: parts[0], Reason: "takes no arguments"}
		}
		return Command{Kind: Quit}, nil
	default:
		return Command{}, ErrInvalidCommand
	}
}

func parseList(parts []string) (Command, error) {
	if len(parts) < 2 {
		return Command{}, &ProtocolError{Command: "ls", Reason: "expected 'r' or 'p'"}
	}
	switch parts[1] {
	case "p":
		if len(parts) != 2 {
			return Command{}, &ProtocolError{Command: "ls", Reason: "'ls p' takes no arguments"}
		}
		return Command{Kind: ListPeers}, nil
	case "r":
		if len(parts) != 3 {
			return Command{}, &ProtocolError{Command: "ls", Reason: "expected 'ls r all' or 'ls r <peer>'"}
		}
		if parts[2] == "all" {
			return Command{Kind: ListPublic}, nil
		}
		return Command{Kind: ListPeer, Peer: parts[2]}, nil
	default:
		return Command{}, &ProtocolError{Command: "ls", Reason: "expected 'r' or 'p'"}
	}
}

func parsePublish(parts []string) (Command, error) {
	if len(parts) != 3 || parts[1] != "r" {
		return Command{}, &ProtocolError{Command: "publish", Reason: "expected 'publish r <id>'"}
	}
	id, err := strconv.ParseUint(parts[2], 10, 64)
	if err != nil || id == 0 {
		return Command{}, &ProtocolError{Command: "publish", Reason: fmt.Sprintf("invalid recipe id %q", parts[2])}
	}
	return Command{Kind: Publish, ID: id}, nil
}

// parseCreate takes everything after "create r" as the payload so names and
// instructions may contain spaces.
func parseCreate(line string, parts []string) (Command, error) {
	if len(parts) < 3 || parts[1] != "r" {
		return Command{}, &ProtocolError{Command: "create", Reason: "expected 'create r <name>|<ingredients>|<instructions>'"}
	}
	payload := strings.TrimSpace(strings.TrimPrefix(line, parts[0]))
	payload = strings.TrimSpace(strings.TrimPrefix(payload, parts[1]))
	if len(payload) >= 2 && strings.HasPrefix(payload, `"`) && strings.HasSuffix(payload, `"`) {
		payload = payload[1 : len(payload)-1]
	}

	fields := strings.Split(payload, "|")
	if len(fields) != 3 {
		return Command{}, &ProtocolError{Command: "create", Reason: fmt.Sprintf("expected 3 '|'-separated fields, got %d", len(fields))}
	}
	for i := range fields {
		fields[i] = norm.NFC.String(strings.TrimSpace(fields[i]))
	}
	if fields[0] == "" {
		return Command{}, &ProtocolError{Command: "create", Reason: "empty recipe name"}
	}
	return Command{
		Kind: Create,
		Recipe: recipe.Record{
			Name:         fields[0],
			Ingredients:  fields[1],
			Instructions: fields[2],
			Visibility:   recipe.Private,
		},
	}, nil
}
