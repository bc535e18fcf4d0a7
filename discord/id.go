package discord

import (
	"strconv"
	"time"

	gotils_strconv "github.com/savsgio/gotils/strconv"
)

const (
	bitSize            = 64
	decimalBase        = 10
	maxInt64JSONLength = 22

	// Discord epoch, the first second of 2015.
	snowflakeEpoch = 1420070400000

	snowflakeTimestampShift = 22
)

// Snowflake is a 64-bit discord identifier. It encodes the creation time of
// the entity it identifies and is transmitted as a JSON string.
type Snowflake int64

func (s *Snowflake) UnmarshalJSON(b []byte) error {
	if len(b) >= 2 && b[0] == '"' {
		b = b[1 : len(b)-1]
	}

	i, err := strconv.ParseInt(gotils_strconv.B2S(b), decimalBase, bitSize)
	if err != nil {
		return err
	}

	*s = Snowflake(i)

	return nil
}

func (s Snowflake) MarshalJSON() ([]byte, error) {
	buff := make([]byte, 0, maxInt64JSONLength)
	buff = append(buff, '"')
	buff = strconv.AppendInt(buff, int64(s), decimalBase)
	buff = append(buff, '"')

	return buff, nil
}

func (s Snowflake) String() string {
	return strconv.FormatInt(int64(s), decimalBase)
}

// Time returns the creation time encoded in the snowflake.
func (s Snowflake) Time() time.Time {
	return time.UnixMilli((int64(s) >> snowflakeTimestampShift) + snowflakeEpoch)
}

// ShardFor returns the shard responsible for this snowflake, using the
// gateway's routing rule on the timestamp portion of the id.
func (s Snowflake) ShardFor(shardCount int32) int32 {
	return int32((int64(s) >> snowflakeTimestampShift) % int64(shardCount))
}
