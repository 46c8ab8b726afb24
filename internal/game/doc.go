// Package game implements the rules of a fruitpass room.
//
// A Room is a plain value: every operation takes the current room and returns
// the next one, leaving its input untouched. This keeps the rules free of
// locking and lets the server's room actor commit a new state to the session
// store before adopting it.
//
// # Lifecycle
//
//	lobby --Start--> playing --ApplyPass (win)--> finished
//	finished --Rematch--> playing
//	finished --ResetToLobby--> lobby
//
// Leave by the host closes the room outright; a guest leaving an active game
// finishes it with no winner.
//
// # Turn rotation
//
// Players act in array order. Each pass moves one card from the current
// player to the end of the next player's hand, then every hand is scanned for
// five of a kind. If more than one player qualifies after the same pass the
// last one in array order is reported as the winner.
package game
