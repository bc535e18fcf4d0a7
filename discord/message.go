package discord

// message.go contains the structure that represents a discord message.

// MessageType represents the type of message that has been sent.
type MessageType uint8

const (
	MessageTypeDefault MessageType = iota
	MessageTypeRecipientAdd
	MessageTypeRecipientRemove
	MessageTypeCall
	MessageTypeChannelNameChange
	MessageTypeChannelIconChange
	MessageTypeChannelPinnedMessage
	MessageTypeGuildMemberJoin
)

// Message represents a message on discord.
type Message struct {
	Content         string       `json:"content"`
	Timestamp       string       `json:"timestamp"`
	EditedTimestamp string       `json:"edited_timestamp,omitempty"`
	Author          User         `json:"author"`
	Member          *GuildMember `json:"member,omitempty"`
	Embeds          []Embed      `json:"embeds,omitempty"`
	Mentions        []User       `json:"mentions,omitempty"`
	ID              Snowflake    `json:"id"`
	ChannelID       Snowflake    `json:"channel_id"`
	GuildID         *Snowflake   `json:"guild_id,omitempty"`
	Type            MessageType  `json:"type"`
	TTS             bool         `json:"tts,omitempty"`
	Pinned          bool         `json:"pinned,omitempty"`
}

// MessageDelete represents the MESSAGE_DELETE dispatch payload.
type MessageDelete struct {
	ID        Snowflake  `json:"id"`
	ChannelID Snowflake  `json:"channel_id"`
	GuildID   *Snowflake `json:"guild_id,omitempty"`
}

// MessageDeleteBulk represents the MESSAGE_DELETE_BULK dispatch payload. A
// single payload carries every deleted message id.
type MessageDeleteBulk struct {
	IDs       []Snowflake `json:"ids"`
	ChannelID Snowflake   `json:"channel_id"`
	GuildID   *Snowflake  `json:"guild_id,omitempty"`
}

// CreateMessageParams is the body of a create-message REST call.
type CreateMessageParams struct {
	Content string  `json:"content,omitempty"`
	Embeds  []Embed `json:"embeds,omitempty"`
	TTS     bool    `json:"tts,omitempty"`
}
