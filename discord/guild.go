package discord

// guild.go contains all structures for guilds.

// Guild represents a guild on discord.
type Guild struct {
	Name        string        `json:"name"`
	Icon        string        `json:"icon,omitempty"`
	Description string        `json:"description,omitempty"`
	Channels    []Channel     `json:"channels,omitempty"`
	Members     []GuildMember `json:"members,omitempty"`
	Emojis      []Emoji       `json:"emojis,omitempty"`
	ID          Snowflake     `json:"id"`
	OwnerID     Snowflake     `json:"owner_id,omitempty"`
	MemberCount int32         `json:"member_count,omitempty"`
	Large       bool          `json:"large,omitempty"`
	Unavailable bool          `json:"unavailable,omitempty"`
}

// UnavailableGuild is the guild stub delivered in READY and in outage
// GUILD_DELETE payloads.
type UnavailableGuild struct {
	ID          Snowflake `json:"id"`
	Unavailable bool      `json:"unavailable"`
}

// GuildMember represents a guild member on discord.
type GuildMember struct {
	User     *User       `json:"user,omitempty"`
	Nick     string      `json:"nick,omitempty"`
	Avatar   *string     `json:"avatar,omitempty"`
	JoinedAt string      `json:"joined_at"`
	Roles    []Snowflake `json:"roles"`
	Deaf     bool        `json:"deaf"`
	Mute     bool        `json:"mute"`
	Pending  bool        `json:"pending,omitempty"`
}

// GuildMemberAdd represents the GUILD_MEMBER_ADD dispatch payload.
type GuildMemberAdd struct {
	*GuildMember
	GuildID Snowflake `json:"guild_id"`
}

// GuildMemberRemove represents the GUILD_MEMBER_REMOVE dispatch payload.
type GuildMemberRemove struct {
	User    User      `json:"user"`
	GuildID Snowflake `json:"guild_id"`
}

// GuildMemberUpdate represents the GUILD_MEMBER_UPDATE dispatch payload.
type GuildMemberUpdate struct {
	*GuildMember
	GuildID Snowflake `json:"guild_id"`
}

// GuildEmojisUpdate represents the GUILD_EMOJIS_UPDATE dispatch payload.
type GuildEmojisUpdate struct {
	Emojis  []Emoji   `json:"emojis"`
	GuildID Snowflake `json:"guild_id"`
}
