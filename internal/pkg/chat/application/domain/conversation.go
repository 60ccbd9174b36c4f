package chat

import "strings"

// User is a chat participant as exposed by the users endpoint.
type User struct {
	ID        int64  `json:"id"`
	Username  string `json:"username"`
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
}

// DisplayName prefers the full name and falls back to the username.
func (u User) DisplayName() string {
	full := strings.TrimSpace(u.FirstName + " " + u.LastName)
	if full != "" {
		return full
	}
	return u.Username
}

// Conversation represents a direct (1:1) or group thread.
type Conversation struct {
	ID      int64  `json:"id"`
	IsGroup bool   `json:"is_group"`
	Title   string `json:"title,omitempty"`
	Members []User `json:"members,omitempty"`
}

// DisplayTitle returns the group title, or for direct chats the name of the
// participant that is not self.
func (c Conversation) DisplayTitle(self string) string {
	if c.Title != "" {
		return c.Title
	}
	if c.IsGroup {
		return "Group chat"
	}
	for _, m := range c.Members {
		if m.Username != "" && m.Username != self {
			return m.DisplayName()
		}
	}
	return "Direct chat"
}
