// Package session tracks per-conversation chat history in memory.
//
// A session is identified by the set of sources the conversation is scoped
// to: the same selection always maps to the same session, so a user
// returning to a source combination resumes the earlier conversation.
package session

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

// AllSourcesKey is the session key for conversations over the whole
// knowledge base (no source filter).
const AllSourcesKey = "all_sources"

// MaxMessages caps history length per session; older messages are dropped.
const MaxMessages = 50

// Message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one turn of a conversation.
type Message struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// Key derives the session key for a source selection. An empty selection
// maps to AllSourcesKey; otherwise the key is the SHA-256 of the sorted
// source IDs, so ordering does not matter.
func Key(sourceIDs []uuid.UUID) string {
	if len(sourceIDs) == 0 {
		return AllSourcesKey
	}

	ids := make([]string, len(sourceIDs))
	for i, id := range sourceIDs {
		ids[i] = id.String()
	}
	sort.Strings(ids)

	sum := sha256.Sum256([]byte(strings.Join(ids, ",")))
	return hex.EncodeToString(sum[:])
}
