package discord

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSnowflakeJSON(t *testing.T) {
	type payload struct {
		ID Snowflake `json:"id"`
	}

	var out payload

	err := json.Unmarshal([]byte(`{"id":"175928847299117063"}`), &out)
	require.NoError(t, err)
	assert.Equal(t, Snowflake(175928847299117063), out.ID)

	data, err := json.Marshal(out)
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"175928847299117063"}`, string(data))
}

func TestSnowflakeTime(t *testing.T) {
	// Taken from the discord documentation's worked example.
	id := Snowflake(175928847299117063)

	expected := time.UnixMilli(1462015105796).UTC()
	assert.Equal(t, expected, id.Time().UTC())
}

func TestSnowflakeShardFor(t *testing.T) {
	id := Snowflake(175928847299117063)

	assert.Equal(t, int32(2), id.ShardFor(3))
	assert.Equal(t, int32(0), id.ShardFor(4))
	assert.Equal(t, int32(0), id.ShardFor(1))
}
