package bot

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// IDPrefix marks synthetic participant ids so they can never collide with a
// human identity.
const IDPrefix = "bot-"

// NewID returns a fresh synthetic bot id.
func NewID() string {
	return IDPrefix + uuid.NewString()
}

// IsBotID reports whether id was produced by NewID.
func IsBotID(id string) bool {
	return strings.HasPrefix(id, IDPrefix)
}

// DisplayName returns the sequential display name of the n-th bot (1-based).
func DisplayName(n int) string {
	return fmt.Sprintf("Bot %d", n)
}
