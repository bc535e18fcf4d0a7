package chiru

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Fuyukai/chiru/discord"
)

func newChunkerClient(t *testing.T, timeout time.Duration) *Client {
	t.Helper()

	configuration := NewConfiguration("test-token")
	configuration.ChunkTimeout = timeout

	client, err := NewClient(zerolog.Nop(), configuration)
	require.NoError(t, err)

	client.Collection = NewCollection(zerolog.Nop(), client.Configuration, "wss://gateway.invalid", 1)

	return client
}

// pendingNonce digs the chunk request nonce out of the shard's outgoing
// queue.
func pendingNonce(t *testing.T, client *Client) string {
	t.Helper()

	shard := client.Collection.Shard(0)

	shard.pendingMu.Lock()
	defer shard.pendingMu.Unlock()

	require.NotEmpty(t, shard.pending)

	request, ok := shard.pending[len(shard.pending)-1].(MemberChunkRequest)
	require.True(t, ok)

	return request.Nonce
}

func testMember(client *Client, guildID, userID discord.Snowflake) *StatefulMember {
	return client.Factory.MakeMember(guildID, discord.GuildMember{
		User: &discord.User{ID: userID},
	})
}

func TestChunkerCompletesOnFinalChunk(t *testing.T) {
	client := newChunkerClient(t, time.Minute)

	require.NoError(t, client.Chunker.Chunk(100))

	nonce := pendingNonce(t, client)

	results := make(chan []*StatefulMember, 1)

	go func() {
		members, err := client.Chunker.WaitForGuild(testContext(t), 100)
		assert.NoError(t, err)
		results <- members
	}()

	client.Chunker.onChunk(GuildMemberChunk{
		Members:    []*StatefulMember{testMember(client, 100, 1)},
		Nonce:      nonce,
		ChunkIndex: 0,
		ChunkCount: 2,
	})

	select {
	case <-results:
		t.Fatal("chunking completed before the final chunk")
	case <-time.After(50 * time.Millisecond):
	}

	client.Chunker.onChunk(GuildMemberChunk{
		Members:    []*StatefulMember{testMember(client, 100, 2)},
		Nonce:      nonce,
		ChunkIndex: 1,
		ChunkCount: 2,
	})

	select {
	case members := <-results:
		assert.Len(t, members, 2)
	case <-time.After(time.Second):
		t.Fatal("chunking never completed")
	}
}

func TestChunkerTimesOut(t *testing.T) {
	client := newChunkerClient(t, 50*time.Millisecond)

	members, err := client.Chunker.WaitForGuild(testContext(t), 100)

	assert.ErrorIs(t, err, ErrChunkTimeout)
	assert.Empty(t, members)
}

func TestChunkerIgnoresUnknownNonce(t *testing.T) {
	client := newChunkerClient(t, time.Minute)

	require.NoError(t, client.Chunker.Chunk(100))

	// A chunk for a request we never made must not disturb tracking.
	client.Chunker.onChunk(GuildMemberChunk{
		Members:    []*StatefulMember{testMember(client, 100, 1)},
		Nonce:      "not-ours",
		ChunkIndex: 0,
		ChunkCount: 1,
	})

	client.Chunker.mu.Lock()
	defer client.Chunker.mu.Unlock()

	state := client.Chunker.byGuild[100]
	require.NotNil(t, state)
	assert.Empty(t, state.members)
}

func TestChunkerReusesInflightRequest(t *testing.T) {
	client := newChunkerClient(t, time.Minute)

	require.NoError(t, client.Chunker.Chunk(100))
	require.NoError(t, client.Chunker.Chunk(100))

	shard := client.Collection.Shard(0)

	shard.pendingMu.Lock()
	defer shard.pendingMu.Unlock()

	assert.Len(t, shard.pending, 1)
}
