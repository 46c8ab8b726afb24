package client

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/lox/fruitpass/internal/bot"
	"github.com/lox/fruitpass/internal/game"
	"github.com/lox/fruitpass/internal/protocol"
)

// Reasons printed when a remembered room can no longer be resumed.
const (
	ReasonRoomClosed = "room closed"
	ReasonRemoved    = "you are no longer in this room"
)

// Session drives a Client from line commands and keeps the resume cache in
// step with the room the participant sits in.
type Session struct {
	client     *Client
	cache      *ResumeCache
	out        io.Writer
	logger     *log.Logger
	name       string
	maxPlayers int

	mu            sync.Mutex
	resumeRequest string
	resumeCode    string
	cached        string
	seenLogs      map[string]bool
	shown         roomView
}

// roomView is the part of a snapshot that triggers a full redraw.
type roomView struct {
	code    string
	status  game.Status
	players int
	max     int
	ready   int
	turn    int
}

// NewSession wires handlers onto client. maxPlayers is used for create; zero
// takes the server default.
func NewSession(client *Client, cache *ResumeCache, name string, maxPlayers int, out io.Writer, logger *log.Logger) *Session {
	s := &Session{
		client:     client,
		cache:      cache,
		out:        out,
		logger:     logger.WithPrefix("session"),
		name:       name,
		maxPlayers: maxPlayers,
		seenLogs:   make(map[string]bool),
	}

	client.AddEventHandler(protocol.TypeRoomSnapshot, s.handleSnapshot)
	client.AddEventHandler(protocol.TypeRoomClosed, s.handleClosed)
	client.AddEventHandler(protocol.TypeError, s.handleError)
	return s
}

// ResumeFromCache re-attaches to the room remembered in the cache, if any.
// A cache written for another identity is replaced with the current one.
func (s *Session) ResumeFromCache() error {
	pid := s.client.ParticipantID()
	entry, err := s.cache.Load()
	if err != nil {
		s.logger.Warn("Ignoring unreadable resume cache", "path", s.cache.Path(), "error", err)
	}
	if err != nil || entry.ParticipantID != pid {
		return s.cache.Save(ResumeEntry{ParticipantID: pid})
	}
	if entry.RoomCode == "" {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	requestID, err := s.client.Resume(entry.RoomCode)
	if err != nil {
		return fmt.Errorf("resume %s: %w", entry.RoomCode, err)
	}
	s.resumeRequest = requestID
	s.resumeCode = entry.RoomCode
	s.printf("Resuming room %s...\n", entry.RoomCode)
	return nil
}

// Run reads commands from in until quit, EOF, ctx cancellation or a lost
// connection.
func (s *Session) Run(ctx context.Context, in io.Reader) error {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	s.printf("Connected as %s. Type help for commands.\n", s.client.ParticipantID())
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-s.client.Done():
			return errors.New("connection to server lost")
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			cmd, err := ParseCommand(line)
			if err != nil {
				s.printf("%v\n", err)
				continue
			}
			if err := s.Execute(cmd); err != nil {
				if errors.Is(err, ErrQuit) {
					return nil
				}
				s.printf("%v\n", err)
			}
		}
	}
}

// Execute sends the request for cmd.
func (s *Session) Execute(cmd Command) error {
	var err error
	switch cmd.Name {
	case CmdCreate:
		_, err = s.client.CreateRoom(s.name, s.maxPlayers)
	case CmdJoin:
		_, err = s.client.JoinRoom(cmd.Code, s.name)
	case CmdStart:
		_, err = s.client.StartGame()
	case CmdPass:
		_, err = s.client.PassCard(cmd.N - 1)
	case CmdAuto:
		err = s.autoPass()
	case CmdReady:
		_, err = s.client.MarkReady()
	case CmdRematch:
		_, err = s.client.Rematch()
	case CmdLobby:
		_, err = s.client.ResetToLobby()
	case CmdMax:
		_, err = s.client.SetMaxPlayers(cmd.N)
	case CmdLeave:
		_, err = s.client.LeaveRoom()
	case CmdHelp:
		s.printf("%s\n", helpText)
	case CmdQuit:
		return ErrQuit
	default:
		return fmt.Errorf("unknown command %q", cmd.Name)
	}
	return err
}

func (s *Session) autoPass() error {
	room, ok := s.client.Room()
	if !ok {
		return errors.New("you are not in a room")
	}
	idx := room.PlayerIndex(s.client.ParticipantID())
	if idx < 0 {
		return errors.New("you are not in a room")
	}
	if room.Status != game.StatusPlaying {
		return errors.New("no game in progress")
	}

	hand := room.Players[idx].Hand
	choice := bot.ChooseDiscard(hand)
	if choice < 0 || choice >= len(hand) {
		return errors.New("no card to pass")
	}
	s.printf("Passing card %d (%s)\n", choice+1, hand[choice].Type)
	_, err := s.client.PassCard(choice)
	return err
}

func (s *Session) handleSnapshot(env protocol.Envelope) {
	var snap protocol.RoomSnapshot
	if err := env.Decode(&snap); err != nil {
		s.logger.Error("Failed to parse snapshot", "error", err)
		return
	}
	room := snap.Room

	s.mu.Lock()
	defer s.mu.Unlock()

	if env.RequestID != "" && env.RequestID == s.resumeRequest {
		s.resumeRequest = ""
		s.resumeCode = ""
	}

	if room.ID != s.cached {
		if err := s.cache.Save(ResumeEntry{ParticipantID: snap.You, RoomCode: room.ID}); err != nil {
			s.logger.Warn("Failed to update resume cache", "error", err)
		} else {
			s.cached = room.ID
		}
	}

	view := roomView{
		code:    room.ID,
		status:  room.Status,
		players: len(room.Players),
		max:     room.MaxPlayers,
		ready:   len(room.ReadyPlayers),
		turn:    room.TurnIndex,
	}
	if view.code != s.shown.code {
		s.seenLogs = make(map[string]bool)
	}

	for _, entry := range room.Logs {
		if s.seenLogs[entry.ID] {
			continue
		}
		s.seenLogs[entry.ID] = true
		s.printf("* %s\n", entry.Message)
	}

	if view != s.shown {
		s.shown = view
		RenderRoom(s.out, room, snap.You)
		if current, ok := room.CurrentPlayer(); ok && current.ID == snap.You {
			s.printf("Your turn: pass N or auto.\n")
		}
	}
}

func (s *Session) handleClosed(env protocol.Envelope) {
	var closed protocol.RoomClosed
	if err := env.Decode(&closed); err != nil {
		s.logger.Error("Failed to parse room_closed", "error", err)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.forget(closed.Code, closed.Reason)
}

func (s *Session) handleError(env protocol.Envelope) {
	var perr protocol.Error
	if err := env.Decode(&perr); err != nil {
		s.logger.Error("Failed to parse error", "error", err)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if env.RequestID != "" && env.RequestID == s.resumeRequest {
		code := s.resumeCode
		s.resumeRequest = ""
		s.resumeCode = ""
		switch perr.Code {
		case protocol.CodeRoomNotFound:
			s.forget(code, ReasonRoomClosed)
			return
		case protocol.CodeNotInRoom:
			s.forget(code, ReasonRemoved)
			return
		}
	}
	s.printf("Error: %s\n", perr.Message)
}

// forget clears the cached room and tells the user why. Callers hold s.mu.
func (s *Session) forget(code, reason string) {
	if err := s.cache.ClearRoom(); err != nil {
		s.logger.Warn("Failed to clear resume cache", "error", err)
	}
	s.cached = ""
	s.shown = roomView{}
	s.seenLogs = make(map[string]bool)
	s.logger.Info("Left room", "room", code, "reason", reason)
	s.printf("Room %s: %s\n", code, reason)
}

func (s *Session) printf(format string, args ...any) {
	_, _ = fmt.Fprintf(s.out, format, args...)
}
