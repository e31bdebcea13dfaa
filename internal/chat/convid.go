package chat

import (
	"fmt"
	"strings"
)

// roomPrefix namespaces conversation rooms away from the per-user rooms,
// which are keyed by the bare user id.
const roomPrefix = "conv:"

// ConversationKey builds the canonical wire id for a 1:1 conversation: the
// two participant ids sorted and joined with an underscore. The client
// constructs the same key, so lookups are symmetric in the pair.
func ConversationKey(a, b string) string {
	if b < a {
		a, b = b, a
	}
	return a + "_" + b
}

// SplitConversationKey recovers the participant pair from a 1:1 key. It
// rejects keys that are not a sorted two-id join.
func SplitConversationKey(key string) (string, string, error) {
	parts := strings.Split(key, "_")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("chat: malformed conversation key %q", key)
	}
	if parts[1] < parts[0] {
		return "", "", fmt.Errorf("chat: conversation key %q is not sorted", key)
	}
	return parts[0], parts[1], nil
}

// RoomName maps a wire conversation id onto its hub room key.
func RoomName(conversationID string) string {
	return roomPrefix + conversationID
}
