package client

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/lox/fruitpass/internal/joincode"
)

// CommandName is an interactive line command.
type CommandName string

const (
	CmdCreate  CommandName = "create"
	CmdJoin    CommandName = "join"
	CmdStart   CommandName = "start"
	CmdPass    CommandName = "pass"
	CmdAuto    CommandName = "auto"
	CmdReady   CommandName = "ready"
	CmdRematch CommandName = "rematch"
	CmdLobby   CommandName = "lobby"
	CmdMax     CommandName = "max"
	CmdLeave   CommandName = "leave"
	CmdHelp    CommandName = "help"
	CmdQuit    CommandName = "quit"
)

// ErrQuit is returned when the user asks to exit.
var ErrQuit = errors.New("quit")

// Command is a parsed input line. For pass, N is the 1-based card number as
// typed.
type Command struct {
	Name CommandName
	Code string
	N    int
}

const helpText = `Commands:
  create          open a new room as host
  join CODE       join a room by its six-character code
  start           start the game (host)
  pass N          pass card N from your hand (1-5)
  auto            pass the card the bot strategy would pick
  ready           mark yourself ready for the next round
  rematch         deal a new round with the same players (host)
  lobby           send everyone back to the lobby (host)
  max N           set the table size, 4-6 (host, lobby only)
  leave           leave the room
  quit            exit the client`

// ParseCommand parses one line of user input.
func ParseCommand(line string) (Command, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return Command{}, fmt.Errorf("empty command")
	}

	cmd := Command{Name: CommandName(strings.ToLower(fields[0]))}
	args := fields[1:]

	switch cmd.Name {
	case CmdCreate, CmdStart, CmdAuto, CmdReady, CmdRematch, CmdLobby, CmdLeave, CmdHelp, CmdQuit:
		if len(args) != 0 {
			return Command{}, fmt.Errorf("%s takes no arguments", cmd.Name)
		}
	case "exit":
		cmd.Name = CmdQuit
	case CmdJoin:
		if len(args) != 1 {
			return Command{}, fmt.Errorf("usage: join CODE")
		}
		code := joincode.Normalize(args[0])
		if err := joincode.Validate(code); err != nil {
			return Command{}, fmt.Errorf("join: %w", err)
		}
		cmd.Code = code
	case CmdPass, CmdMax:
		if len(args) != 1 {
			return Command{}, fmt.Errorf("usage: %s N", cmd.Name)
		}
		n, err := strconv.Atoi(args[0])
		if err != nil {
			return Command{}, fmt.Errorf("%s: %q is not a number", cmd.Name, args[0])
		}
		if cmd.Name == CmdPass && n < 1 {
			return Command{}, fmt.Errorf("pass: cards are numbered from 1")
		}
		cmd.N = n
	default:
		return Command{}, fmt.Errorf("unknown command %q (try help)", fields[0])
	}
	return cmd, nil
}
