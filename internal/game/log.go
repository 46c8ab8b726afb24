package game

import (
	"time"

	"github.com/google/uuid"
)

func (r *Room) appendLog(kind LogKind, message string, now time.Time) {
	r.Logs = append(r.Logs, LogEntry{
		ID:      uuid.NewString(),
		Kind:    kind,
		Message: message,
		At:      now,
	})
	if over := len(r.Logs) - MaxLogEntries; over > 0 {
		r.Logs = append([]LogEntry(nil), r.Logs[over:]...)
	}
}
