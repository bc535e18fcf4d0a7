package chiru

import (
	"encoding/json"
	"fmt"

	"github.com/Fuyukai/chiru/discord"
)

// events_dispatch.go contains the parse functions for each dispatch name.
// Events are appended in a fixed order per dispatch; handlers always observe
// the same ordering for the same frame.

func (p *CachedEventParser) parseReady(ctx *EventContext, data json.RawMessage) ([]DispatchedEvent, error) {
	var ready discord.Ready
	if err := jsonDecoder.Unmarshal(data, &ready); err != nil {
		return nil, err
	}

	p.markUnstreamed(ctx.ShardID, ready.Guilds)

	p.logger.Info().
		Int32("shardId", ctx.ShardID).
		Int("guilds", len(ready.Guilds)).
		Msg("Shard is connected, awaiting guild stream")

	events := []DispatchedEvent{Connected{ShardID: ctx.ShardID}}

	// A shard with no guilds at all has nothing to stream.
	if len(ready.Guilds) == 0 {
		events = append(events, ShardReady{ShardID: ctx.ShardID})
	}

	return events, nil
}

func (p *CachedEventParser) parseResumed(ctx *EventContext, _ json.RawMessage) ([]DispatchedEvent, error) {
	p.logger.Info().
		Int32("shardId", ctx.ShardID).
		Msg("Shard resumed previous session")

	return []DispatchedEvent{Resumed{ShardID: ctx.ShardID}}, nil
}

func (p *CachedEventParser) parseGuildCreate(ctx *EventContext, data json.RawMessage) ([]DispatchedEvent, error) {
	var guild discord.Guild
	if err := jsonDecoder.Unmarshal(data, &guild); err != nil {
		return nil, err
	}

	previous := p.client.Cache.GetGuild(guild.ID)

	stateful := p.client.Factory.MakeGuild(guild)
	p.client.Cache.PutGuild(stateful)

	for _, channel := range guild.Channels {
		if !channel.Type.Known() {
			p.logger.Warn().
				Int64("channelId", int64(channel.ID)).
				Uint8("type", uint8(channel.Type)).
				Msg("Skipping channel of unsupported type")

			continue
		}

		if channel.GuildID == nil {
			channel.GuildID = &guild.ID
		}

		p.client.Cache.PutChannel(p.client.Factory.MakeChannel(channel))
	}

	pending, last := p.consumeUnstreamed(ctx.ShardID, guild.ID)

	switch {
	case pending && last:
		return []DispatchedEvent{
			GuildStreamed{Guild: stateful},
			ShardReady{ShardID: ctx.ShardID},
		}, nil
	case pending:
		return []DispatchedEvent{GuildStreamed{Guild: stateful}}, nil
	case previous != nil && previous.Unavailable:
		return []DispatchedEvent{GuildAvailable{Guild: stateful}}, nil
	default:
		return []DispatchedEvent{GuildJoined{Guild: stateful}}, nil
	}
}

func (p *CachedEventParser) parseGuildDelete(_ *EventContext, data json.RawMessage) ([]DispatchedEvent, error) {
	var stub discord.UnavailableGuild
	if err := jsonDecoder.Unmarshal(data, &stub); err != nil {
		return nil, err
	}

	// An unavailable guild is an outage, not a removal. Keep it cached but
	// flag it so the next GUILD_CREATE maps to GuildAvailable.
	if stub.Unavailable {
		p.client.Cache.UpdateGuild(stub.ID, func(existing *StatefulGuild) *StatefulGuild {
			if existing == nil {
				return nil
			}

			updated := *existing
			updated.Guild.Unavailable = true

			return &updated
		})

		return []DispatchedEvent{GuildUnavailable{GuildID: stub.ID}}, nil
	}

	p.client.Cache.RemoveGuild(stub.ID)

	return []DispatchedEvent{GuildLeft{GuildID: stub.ID}}, nil
}

func (p *CachedEventParser) parseGuildMembersChunk(_ *EventContext, data json.RawMessage) ([]DispatchedEvent, error) {
	var chunk discord.GuildMembersChunk
	if err := jsonDecoder.Unmarshal(data, &chunk); err != nil {
		return nil, err
	}

	members := make([]*StatefulMember, 0, len(chunk.Members))
	for _, member := range chunk.Members {
		members = append(members, p.client.Factory.MakeMember(chunk.GuildID, member))
	}

	guild := p.client.Cache.UpdateGuild(chunk.GuildID, func(existing *StatefulGuild) *StatefulGuild {
		if existing == nil {
			return nil
		}

		updated := *existing
		updated.Members = append(append([]*StatefulMember{}, existing.Members...), members...)

		return &updated
	})

	return []DispatchedEvent{GuildMemberChunk{
		Guild:      guild,
		Members:    members,
		Nonce:      chunk.Nonce,
		ChunkIndex: chunk.ChunkIndex,
		ChunkCount: chunk.ChunkCount,
	}}, nil
}

func (p *CachedEventParser) parseGuildMemberAdd(_ *EventContext, data json.RawMessage) ([]DispatchedEvent, error) {
	var payload discord.GuildMemberAdd
	if err := jsonDecoder.Unmarshal(data, &payload); err != nil {
		return nil, err
	}

	if payload.GuildMember == nil {
		return nil, fmt.Errorf("member add for guild %d carried no member", payload.GuildID)
	}

	member := p.client.Factory.MakeMember(payload.GuildID, *payload.GuildMember)

	p.client.Cache.UpdateGuild(payload.GuildID, func(existing *StatefulGuild) *StatefulGuild {
		if existing == nil {
			return nil
		}

		updated := *existing
		updated.Members = append(append([]*StatefulMember{}, existing.Members...), member)
		updated.MemberCount++

		return &updated
	})

	return []DispatchedEvent{MemberJoined{Member: member}}, nil
}

func (p *CachedEventParser) parseGuildMemberRemove(_ *EventContext, data json.RawMessage) ([]DispatchedEvent, error) {
	var payload discord.GuildMemberRemove
	if err := jsonDecoder.Unmarshal(data, &payload); err != nil {
		return nil, err
	}

	p.client.Cache.UpdateGuild(payload.GuildID, func(existing *StatefulGuild) *StatefulGuild {
		if existing == nil {
			return nil
		}

		updated := *existing
		updated.Members = make([]*StatefulMember, 0, len(existing.Members))

		for _, member := range existing.Members {
			if member.User != nil && member.User.ID == payload.User.ID {
				continue
			}

			updated.Members = append(updated.Members, member)
		}

		updated.MemberCount--

		return &updated
	})

	return []DispatchedEvent{MemberLeft{
		GuildID: payload.GuildID,
		User:    payload.User,
	}}, nil
}

func (p *CachedEventParser) parseGuildMemberUpdate(_ *EventContext, data json.RawMessage) ([]DispatchedEvent, error) {
	var payload discord.GuildMemberUpdate
	if err := jsonDecoder.Unmarshal(data, &payload); err != nil {
		return nil, err
	}

	if payload.GuildMember == nil {
		return nil, fmt.Errorf("member update for guild %d carried no member", payload.GuildID)
	}

	member := p.client.Factory.MakeMember(payload.GuildID, *payload.GuildMember)

	p.client.Cache.UpdateGuild(payload.GuildID, func(existing *StatefulGuild) *StatefulGuild {
		if existing == nil {
			return nil
		}

		updated := *existing
		updated.Members = make([]*StatefulMember, 0, len(existing.Members))

		replaced := false

		for _, old := range existing.Members {
			if old.User != nil && member.User != nil && old.User.ID == member.User.ID {
				updated.Members = append(updated.Members, member)
				replaced = true

				continue
			}

			updated.Members = append(updated.Members, old)
		}

		if !replaced {
			updated.Members = append(updated.Members, member)
		}

		return &updated
	})

	return []DispatchedEvent{MemberUpdated{Member: member}}, nil
}

func (p *CachedEventParser) parseGuildEmojisUpdate(_ *EventContext, data json.RawMessage) ([]DispatchedEvent, error) {
	var payload discord.GuildEmojisUpdate
	if err := jsonDecoder.Unmarshal(data, &payload); err != nil {
		return nil, err
	}

	var previous []discord.Emoji

	p.client.Cache.UpdateGuild(payload.GuildID, func(existing *StatefulGuild) *StatefulGuild {
		if existing == nil {
			return nil
		}

		previous = existing.Emojis

		updated := *existing
		updated.Emojis = payload.Emojis

		return &updated
	})

	return []DispatchedEvent{GuildEmojiUpdated{
		GuildID:  payload.GuildID,
		Previous: previous,
		Emojis:   payload.Emojis,
	}}, nil
}

func (p *CachedEventParser) parseChannelCreate(_ *EventContext, data json.RawMessage) ([]DispatchedEvent, error) {
	var channel discord.Channel
	if err := jsonDecoder.Unmarshal(data, &channel); err != nil {
		return nil, err
	}

	if !channel.Type.Known() {
		p.logger.Warn().
			Int64("channelId", int64(channel.ID)).
			Uint8("type", uint8(channel.Type)).
			Msg("Ignoring created channel of unsupported type")

		return nil, nil
	}

	stateful := p.client.Factory.MakeChannel(channel)
	p.client.Cache.PutChannel(stateful)

	return []DispatchedEvent{ChannelCreated{Channel: stateful}}, nil
}

func (p *CachedEventParser) parseChannelUpdate(_ *EventContext, data json.RawMessage) ([]DispatchedEvent, error) {
	var channel discord.Channel
	if err := jsonDecoder.Unmarshal(data, &channel); err != nil {
		return nil, err
	}

	if !channel.Type.Known() {
		p.logger.Warn().
			Int64("channelId", int64(channel.ID)).
			Uint8("type", uint8(channel.Type)).
			Msg("Ignoring updated channel of unsupported type")

		return nil, nil
	}

	previous := p.client.Cache.GetChannel(channel.ID)

	stateful := p.client.Factory.MakeChannel(channel)
	p.client.Cache.PutChannel(stateful)

	return []DispatchedEvent{ChannelUpdated{
		Previous: previous,
		Channel:  stateful,
	}}, nil
}

func (p *CachedEventParser) parseChannelDelete(_ *EventContext, data json.RawMessage) ([]DispatchedEvent, error) {
	var payload discord.ChannelDelete
	if err := jsonDecoder.Unmarshal(data, &payload); err != nil {
		return nil, err
	}

	p.client.Cache.RemoveChannel(payload.ID)

	event := ChannelDeleted{ChannelID: payload.ID}
	if payload.GuildID != nil {
		event.GuildID = *payload.GuildID
	}

	return []DispatchedEvent{event}, nil
}

func (p *CachedEventParser) parseMessageCreate(_ *EventContext, data json.RawMessage) ([]DispatchedEvent, error) {
	var message discord.Message
	if err := jsonDecoder.Unmarshal(data, &message); err != nil {
		return nil, err
	}

	return []DispatchedEvent{MessageCreated{
		Message: p.client.Factory.MakeMessage(message),
	}}, nil
}

func (p *CachedEventParser) parseMessageUpdate(_ *EventContext, data json.RawMessage) ([]DispatchedEvent, error) {
	var message discord.Message
	if err := jsonDecoder.Unmarshal(data, &message); err != nil {
		return nil, err
	}

	return []DispatchedEvent{MessageUpdated{
		Message: p.client.Factory.MakeMessage(message),
	}}, nil
}

func (p *CachedEventParser) parseMessageDelete(_ *EventContext, data json.RawMessage) ([]DispatchedEvent, error) {
	var payload discord.MessageDelete
	if err := jsonDecoder.Unmarshal(data, &payload); err != nil {
		return nil, err
	}

	event := MessageDeleted{
		MessageID: payload.ID,
		ChannelID: payload.ChannelID,
	}
	if payload.GuildID != nil {
		event.GuildID = *payload.GuildID
	}

	return []DispatchedEvent{event}, nil
}

func (p *CachedEventParser) parseMessageDeleteBulk(_ *EventContext, data json.RawMessage) ([]DispatchedEvent, error) {
	var payload discord.MessageDeleteBulk
	if err := jsonDecoder.Unmarshal(data, &payload); err != nil {
		return nil, err
	}

	event := MessageBulkDeleted{
		MessageIDs: payload.IDs,
		ChannelID:  payload.ChannelID,
	}
	if payload.GuildID != nil {
		event.GuildID = *payload.GuildID
	}

	return []DispatchedEvent{event}, nil
}
