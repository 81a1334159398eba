package models

import (
	"time"
)

type Role string

const (
	RoleUser Role = "user"
	RoleBot  Role = "bot"
)

// Turn is one recorded utterance in a conversation. HTML holds the
// presentation variant and is never used to build generation context.
type Turn struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	HTML      string    `json:"html"`
	Timestamp time.Time `json:"timestamp"`
}

// Conversation is the ordered sequence of turns stored under one session identity.
type Conversation []Turn

// Last returns the most recent turn, if any.
func (c Conversation) Last() (Turn, bool) {
	if len(c) == 0 {
		return Turn{}, false
	}
	return c[len(c)-1], true
}

// Window returns the most recent n turns oldest-first. n <= 0 returns everything.
func (c Conversation) Window(n int) Conversation {
	if n <= 0 || n >= len(c) {
		return c
	}
	return c[len(c)-n:]
}
