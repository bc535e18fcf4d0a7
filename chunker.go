package chiru

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/Fuyukai/chiru/discord"
)

// GuildChunker requests member chunks for guilds and tracks their
// completion. Each request carries a random nonce so interleaved chunk
// streams for the same guild stay separate.
//
// The chunker does not consume the gateway itself; whichever dispatcher is
// running feeds GuildMemberChunk events into it.
type GuildChunker struct {
	logger zerolog.Logger

	client *Client

	timeout time.Duration

	mu      sync.Mutex
	byNonce map[string]*guildChunkState
	byGuild map[discord.Snowflake]*guildChunkState
}

type guildChunkState struct {
	guildID discord.Snowflake
	nonce   string

	members  []*StatefulMember
	received int32
	total    int32

	timer *time.Timer

	err  error
	done chan struct{}
}

// NewGuildChunker creates a chunker for the given client.
func NewGuildChunker(client *Client, timeout time.Duration) *GuildChunker {
	return &GuildChunker{
		logger: client.Logger.With().Str("component", "chunker").Logger(),

		client: client,

		timeout: timeout,

		byNonce: make(map[string]*guildChunkState),
		byGuild: make(map[discord.Snowflake]*guildChunkState),
	}
}

// Chunk requests the full member list for a guild and returns immediately.
// The chunk events flow through the dispatcher like any other event; use
// WaitForGuild to block until the guild is fully chunked.
func (c *GuildChunker) Chunk(guildID discord.Snowflake) error {
	_, err := c.begin(guildID)

	return err
}

// begin starts chunking a guild, reusing an in-flight request if one exists.
func (c *GuildChunker) begin(guildID discord.Snowflake) (*guildChunkState, error) {
	c.mu.Lock()

	if state, ok := c.byGuild[guildID]; ok {
		c.mu.Unlock()

		return state, nil
	}

	state := &guildChunkState{
		guildID: guildID,
		nonce:   uuid.NewString(),
		done:    make(chan struct{}),
	}

	state.timer = time.AfterFunc(c.timeout, func() {
		c.expire(state)
	})

	c.byNonce[state.nonce] = state
	c.byGuild[guildID] = state

	c.mu.Unlock()

	c.logger.Debug().
		Int64("guildId", int64(guildID)).
		Str("nonce", state.nonce).
		Msg("Requesting guild member chunks")

	err := c.client.Collection.SendToGuild(guildID, MemberChunkRequest{
		GuildID: guildID,
		Nonce:   state.nonce,
	})
	if err != nil {
		c.complete(state, err)

		return nil, err
	}

	return state, nil
}

// WaitForGuild chunks a guild and blocks until every chunk has arrived, the
// chunker times out, or the context is cancelled. On timeout the members
// received so far are returned alongside ErrChunkTimeout.
func (c *GuildChunker) WaitForGuild(ctx context.Context, guildID discord.Snowflake) ([]*StatefulMember, error) {
	state, err := c.begin(guildID)
	if err != nil {
		return nil, err
	}

	select {
	case <-state.done:
		return state.members, state.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// onChunk feeds a received member chunk into the tracker. Chunks with an
// unknown nonce belong to requests the chunker did not make and are ignored.
func (c *GuildChunker) onChunk(chunk GuildMemberChunk) {
	c.mu.Lock()

	state, ok := c.byNonce[chunk.Nonce]
	if !ok {
		c.mu.Unlock()

		return
	}

	state.members = append(state.members, chunk.Members...)
	state.received++
	state.total = chunk.ChunkCount

	state.timer.Reset(c.timeout)

	finished := state.total > 0 && state.received >= state.total

	c.mu.Unlock()

	c.logger.Debug().
		Int64("guildId", int64(state.guildID)).
		Int32("chunkIndex", chunk.ChunkIndex).
		Int32("chunkCount", chunk.ChunkCount).
		Msg("Received guild member chunk")

	if finished {
		c.complete(state, nil)
	}
}

func (c *GuildChunker) expire(state *guildChunkState) {
	c.mu.Lock()
	received := state.received
	total := state.total
	c.mu.Unlock()

	c.logger.Warn().
		Int64("guildId", int64(state.guildID)).
		Int32("received", received).
		Int32("total", total).
		Msg("Timed out receiving guild member chunks")

	c.complete(state, ErrChunkTimeout)
}

func (c *GuildChunker) complete(state *guildChunkState, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.byNonce[state.nonce]; !ok {
		// Already completed by the other path.
		return
	}

	state.timer.Stop()
	state.err = err

	delete(c.byNonce, state.nonce)
	delete(c.byGuild, state.guildID)

	close(state.done)
}
