package console

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	chat "go-chatty-client/internal/pkg/chat/application/domain"
)

// CommandKind is what an input line asks for.
type CommandKind int

const (
	CommandNone CommandKind = iota
	CommandSend
	CommandReply
	CommandDismiss
	CommandHistory
	CommandQuit
	CommandHelp
)

// Command is a parsed input line.
type Command struct {
	Kind      CommandKind
	Content   string
	ReplyToID *int64
}

// ErrTooLong is returned for messages over chat.MaxContentLength characters.
var ErrTooLong = fmt.Errorf("message exceeds %d characters", chat.MaxContentLength)

// Help lists the interactive commands.
const Help = `/reply <id> <text>  reply to message #id
/history            reprint the conversation
/dismiss            hide the error banner
/quit               leave
anything else is sent as a message`

// ParseInput interprets one line typed in an open conversation.
func ParseInput(line string) (Command, error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return Command{Kind: CommandNone}, nil
	}
	if !strings.HasPrefix(line, "/") {
		return sendCommand(CommandSend, line, nil)
	}

	name, rest, _ := strings.Cut(line, " ")
	rest = strings.TrimSpace(rest)
	switch name {
	case "/quit", "/exit":
		return Command{Kind: CommandQuit}, nil
	case "/dismiss":
		return Command{Kind: CommandDismiss}, nil
	case "/history":
		return Command{Kind: CommandHistory}, nil
	case "/help":
		return Command{Kind: CommandHelp}, nil
	case "/reply":
		idText, content, _ := strings.Cut(rest, " ")
		id, err := strconv.ParseInt(strings.TrimPrefix(idText, "#"), 10, 64)
		if err != nil || id <= 0 {
			return Command{}, errors.New("usage: /reply <id> <text>")
		}
		return sendCommand(CommandReply, content, &id)
	default:
		return Command{}, fmt.Errorf("unknown command %s (try /help)", name)
	}
}

func sendCommand(kind CommandKind, content string, replyTo *int64) (Command, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return Command{}, chat.ErrEmptyMessage
	}
	if utf8.RuneCountInString(content) > chat.MaxContentLength {
		return Command{}, ErrTooLong
	}
	return Command{Kind: kind, Content: content, ReplyToID: replyTo}, nil
}
