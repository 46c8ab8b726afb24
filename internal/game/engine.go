package game

import (
	"fmt"
	"slices"
	"time"

	"github.com/lox/fruitpass/internal/deck"
)

// Pass is the turn-holder's move: actorID gives away the card at cardIndex.
// Bot seats are played by the room authority through ApplyPass directly.
func Pass(room Room, actorID string, cardIndex int, now time.Time) (Room, error) {
	if err := RequireTurn(room, actorID); err != nil {
		return room, err
	}
	return ApplyPass(room, cardIndex, now)
}

// ApplyPass moves the current player's card at cardIndex to the next player
// in rotation and then checks every hand for five of a kind. An out-of-range
// index is rejected with ErrInvalidMove.
func ApplyPass(room Room, cardIndex int, now time.Time) (Room, error) {
	cur, ok := room.CurrentPlayer()
	if !ok {
		return room, fmt.Errorf("pass: %w", ErrWrongPhase)
	}
	if cardIndex < 0 || cardIndex >= len(cur.Hand) {
		return room, fmt.Errorf("card index %d with %d cards in hand: %w", cardIndex, len(cur.Hand), ErrInvalidMove)
	}
	return applyPass(room, cardIndex, now), nil
}

// ApplyPassLenient behaves like ApplyPass but gives away the last card in hand
// when cardIndex is out of range instead of failing.
func ApplyPassLenient(room Room, cardIndex int, now time.Time) (Room, error) {
	cur, ok := room.CurrentPlayer()
	if !ok {
		return room, fmt.Errorf("pass: %w", ErrWrongPhase)
	}
	if len(cur.Hand) == 0 {
		return room, fmt.Errorf("%s has no cards: %w", cur.Name, ErrInvalidMove)
	}
	if cardIndex < 0 || cardIndex >= len(cur.Hand) {
		cardIndex = len(cur.Hand) - 1
	}
	return applyPass(room, cardIndex, now), nil
}

func applyPass(room Room, cardIndex int, now time.Time) Room {
	next := room.Clone()
	curIdx := next.TurnIndex
	nextIdx := (curIdx + 1) % len(next.Players)

	giver := &next.Players[curIdx]
	receiver := &next.Players[nextIdx]

	card := giver.Hand[cardIndex]
	giver.Hand = slices.Delete(giver.Hand, cardIndex, cardIndex+1)
	receiver.Hand = append(receiver.Hand, card)

	winner, kind := scanForWinner(next.Players)
	if winner >= 0 {
		w := next.Players[winner]
		next.Status = StatusFinished
		next.WinnerID = w.ID
		next.appendLog(LogWin, fmt.Sprintf("%s collected five %ss!", w.Name, kind), now)
		return next
	}

	next.TurnIndex = nextIdx
	next.appendLog(LogAction, fmt.Sprintf("%s passed to %s", giver.Name, receiver.Name), now)
	return next
}

// scanForWinner checks every player and keeps the last qualifying seat.
func scanForWinner(players []Player) (int, deck.Kind) {
	winner := -1
	var kind deck.Kind
	for i, p := range players {
		if k, ok := deck.FiveOfAKind(p.Hand); ok {
			winner = i
			kind = k
		}
	}
	return winner, kind
}
