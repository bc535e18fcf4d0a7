package discord

// emoji.go contains the structures of an emoji.

// Emoji represents an emoji on discord.
type Emoji struct {
	Name      string      `json:"name"`
	Roles     []Snowflake `json:"roles,omitempty"`
	User      *User       `json:"user,omitempty"`
	ID        Snowflake   `json:"id"`
	Managed   bool        `json:"managed,omitempty"`
	Animated  bool        `json:"animated,omitempty"`
	Available bool        `json:"available,omitempty"`
}
