package discord

// channel.go contains the information relating to channels.

// ChannelType represents a channel's type. The set of types is closed:
// anything outside this enumeration is an unsupported future kind and must be
// handled explicitly, not silently treated as text.
type ChannelType uint8

const (
	ChannelTypeGuildText ChannelType = iota
	ChannelTypeDM
	ChannelTypeGuildVoice
	ChannelTypeGroupDM
	ChannelTypeGuildCategory
	ChannelTypeGuildNews
	ChannelTypeGuildStore
	_
	_
	_
	ChannelTypeGuildNewsThread
	ChannelTypeGuildPublicThread
	ChannelTypeGuildPrivateThread
	ChannelTypeGuildStageVoice
)

// Textual reports whether messages can be sent to a channel of this type.
func (t ChannelType) Textual() bool {
	switch t {
	case ChannelTypeGuildText, ChannelTypeDM, ChannelTypeGroupDM,
		ChannelTypeGuildNews, ChannelTypeGuildNewsThread,
		ChannelTypeGuildPublicThread, ChannelTypeGuildPrivateThread:
		return true
	default:
		return false
	}
}

// Known reports whether this channel type is part of the supported set.
func (t ChannelType) Known() bool {
	switch t {
	case ChannelTypeGuildText, ChannelTypeDM, ChannelTypeGuildVoice,
		ChannelTypeGroupDM, ChannelTypeGuildCategory, ChannelTypeGuildNews,
		ChannelTypeGuildStore, ChannelTypeGuildNewsThread,
		ChannelTypeGuildPublicThread, ChannelTypeGuildPrivateThread,
		ChannelTypeGuildStageVoice:
		return true
	default:
		return false
	}
}

// Channel represents a discord channel.
type Channel struct {
	Name       string      `json:"name,omitempty"`
	Topic      string      `json:"topic,omitempty"`
	Recipients []User      `json:"recipients,omitempty"`
	ID         Snowflake   `json:"id"`
	GuildID    *Snowflake  `json:"guild_id,omitempty"`
	OwnerID    *Snowflake  `json:"owner_id,omitempty"`
	ParentID   *Snowflake  `json:"parent_id,omitempty"`
	Position   int32       `json:"position,omitempty"`
	Type       ChannelType `json:"type"`
	NSFW       bool        `json:"nsfw,omitempty"`
}

// ChannelDelete represents the CHANNEL_DELETE dispatch payload.
type ChannelDelete struct {
	ID      Snowflake  `json:"id"`
	GuildID *Snowflake `json:"guild_id,omitempty"`
}
