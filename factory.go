package chiru

import (
	"context"

	"github.com/Fuyukai/chiru/discord"
)

// StatefulFactory upgrades raw wire models into stateful objects that carry a
// back-reference to the owning client. The factory does not touch the cache;
// callers decide what gets stored.
type StatefulFactory struct {
	client *Client
}

// NewStatefulFactory creates a factory bound to client.
func NewStatefulFactory(client *Client) *StatefulFactory {
	return &StatefulFactory{client: client}
}

// MakeGuild upgrades a raw guild. Member and channel payloads embedded in the
// guild are upgraded alongside it.
func (f *StatefulFactory) MakeGuild(guild discord.Guild) *StatefulGuild {
	stateful := &StatefulGuild{
		Guild:  guild,
		client: f.client,
	}

	stateful.Members = make([]*StatefulMember, 0, len(guild.Members))
	for _, member := range guild.Members {
		stateful.Members = append(stateful.Members, f.MakeMember(guild.ID, member))
	}

	return stateful
}

// MakeChannel upgrades a raw channel.
func (f *StatefulFactory) MakeChannel(channel discord.Channel) *StatefulChannel {
	return &StatefulChannel{
		Channel: channel,
		client:  f.client,
	}
}

// MakeMessage upgrades a raw message.
func (f *StatefulFactory) MakeMessage(message discord.Message) *StatefulMessage {
	return &StatefulMessage{
		Message: message,
		client:  f.client,
	}
}

// MakeMember upgrades a raw guild member.
func (f *StatefulFactory) MakeMember(guildID discord.Snowflake, member discord.GuildMember) *StatefulMember {
	return &StatefulMember{
		GuildMember: member,
		GuildID:     guildID,
		client:      f.client,
	}
}

// StatefulGuild is a guild with a back-reference to the owning client.
type StatefulGuild struct {
	discord.Guild

	Members []*StatefulMember

	client *Client
}

// Channels returns the guild's channels from the client cache.
func (g *StatefulGuild) Channels() []*StatefulChannel {
	channels := make([]*StatefulChannel, 0, len(g.Guild.Channels))

	for _, channel := range g.Guild.Channels {
		if cached := g.client.Cache.GetChannel(channel.ID); cached != nil {
			channels = append(channels, cached)
		}
	}

	return channels
}

// RequestMembers asks the gateway to stream this guild's full member list.
func (g *StatefulGuild) RequestMembers(ctx context.Context) ([]*StatefulMember, error) {
	return g.client.Chunker.WaitForGuild(ctx, g.ID)
}

// StatefulChannel is a channel with a back-reference to the owning client.
type StatefulChannel struct {
	discord.Channel

	client *Client
}

// Guild returns the cached guild this channel belongs to, or nil for direct
// message channels.
func (c *StatefulChannel) Guild() *StatefulGuild {
	if c.GuildID == nil {
		return nil
	}

	return c.client.Cache.GetGuild(*c.GuildID)
}

// SendMessage sends a message to this channel.
func (c *StatefulChannel) SendMessage(ctx context.Context, params discord.CreateMessageParams) (*StatefulMessage, error) {
	message, err := c.client.Rest.CreateMessage(ctx, c.ID, params)
	if err != nil {
		return nil, err
	}

	return c.client.Factory.MakeMessage(*message), nil
}

// StatefulMessage is a message with a back-reference to the owning client.
type StatefulMessage struct {
	discord.Message

	client *Client
}

// Channel returns the cached channel this message was sent to, or nil.
func (m *StatefulMessage) Channel() *StatefulChannel {
	return m.client.Cache.GetChannel(m.ChannelID)
}

// Respond sends a plain text message to the same channel.
func (m *StatefulMessage) Respond(ctx context.Context, content string) (*StatefulMessage, error) {
	message, err := m.client.Rest.CreateMessage(ctx, m.ChannelID, discord.CreateMessageParams{
		Content: content,
	})
	if err != nil {
		return nil, err
	}

	return m.client.Factory.MakeMessage(*message), nil
}

// StatefulMember is a guild member with a back-reference to the owning
// client.
type StatefulMember struct {
	discord.GuildMember

	GuildID discord.Snowflake

	client *Client
}

// Guild returns the cached guild this member belongs to, or nil.
func (m *StatefulMember) Guild() *StatefulGuild {
	return m.client.Cache.GetGuild(m.GuildID)
}
