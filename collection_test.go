package chiru

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Fuyukai/chiru/discord"
)

func testContext(t *testing.T) context.Context {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)

	return ctx
}

func newTestCollection(t *testing.T, shardCount int32) *Collection {
	t.Helper()

	configuration := NewConfiguration("test-token")

	return NewCollection(zerolog.Nop(), &configuration, "wss://gateway.invalid", shardCount)
}

func TestCollectionSendToShardRange(t *testing.T) {
	collection := newTestCollection(t, 2)

	assert.ErrorIs(t, collection.SendToShard(-1, MemberChunkRequest{GuildID: 1}), ErrInvalidShard)
	assert.ErrorIs(t, collection.SendToShard(2, MemberChunkRequest{GuildID: 1}), ErrInvalidShard)

	// In range: shards are not ready, so the event is queued.
	require.NoError(t, collection.SendToShard(1, MemberChunkRequest{GuildID: 1}))

	shard := collection.Shard(1)
	require.NotNil(t, shard)
	assert.Len(t, shard.pending, 1)
}

func TestCollectionSendToGuildRoutesByShard(t *testing.T) {
	collection := newTestCollection(t, 3)

	// 175928847299117063 >> 22 == 41944705796, which mod 3 is 2.
	guildID := discord.Snowflake(175928847299117063)

	require.NoError(t, collection.SendToGuild(guildID, MemberChunkRequest{GuildID: guildID}))

	assert.Empty(t, collection.Shard(0).pending)
	assert.Empty(t, collection.Shard(1).pending)
	assert.Len(t, collection.Shard(2).pending, 1)
}

func TestCollectionShardAccessors(t *testing.T) {
	collection := newTestCollection(t, 4)

	assert.EqualValues(t, 4, collection.ShardCount())
	assert.Nil(t, collection.Shard(4))
	assert.NotNil(t, collection.Shard(3))
	assert.EqualValues(t, 3, collection.Shard(3).ShardID)
}

func TestCollectionEventOrderPerShard(t *testing.T) {
	collection := newTestCollection(t, 1)

	shard := collection.Shard(0)

	for i := int64(1); i <= 3; i++ {
		require.NoError(t, shard.emitDispatch(testContext(t), GatewayDispatch{
			gatewayEvent: gatewayEvent{ShardID: 0},
			EventName:    "MESSAGE_CREATE",
			Sequence:     i,
		}))
	}

	for i := int64(1); i <= 3; i++ {
		event := <-collection.Events()

		dispatch, ok := event.(GatewayDispatch)
		require.True(t, ok)
		assert.Equal(t, i, dispatch.Sequence)
	}
}
