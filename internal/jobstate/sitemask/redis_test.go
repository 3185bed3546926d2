package sitemask

import (
	"testing"
	"time"

	"github.com/alicebob/miniredis"
	"github.com/go-redis/redis"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var updated = time.Date(2022, 10, 1, 12, 0, 0, 0, time.UTC)

func TestRedisMirror(t *testing.T) {
	withRedisMirror(func(publisher *RedisPublisher, reader *RedisReader) {
		err := publisher.Publish([]Entry{
			{Site: "LCG.CERN.ch", Status: Active, LastUpdateTime: updated, Author: "admin", Comment: "ok"},
			{Site: "LCG.RAL.uk", Status: Banned, LastUpdateTime: updated, Author: "admin", Comment: "downtime"},
			{Site: "LCG.PIC.es", Status: Probing, LastUpdateTime: updated, Author: "admin"},
		})
		require.NoError(t, err)

		mask, err := reader.GetMask(All)
		require.NoError(t, err)
		require.Len(t, mask, 3)
		assert.Equal(t, Entry{Site: "LCG.CERN.ch", Status: Active, LastUpdateTime: updated, Author: "admin", Comment: "ok"}, mask[0])

		banned, err := reader.GetMask(Filter(Banned))
		require.NoError(t, err)
		require.Len(t, banned, 1)
		assert.Equal(t, "LCG.RAL.uk", banned[0].Site)

		s, err := reader.GetSiteStatus("LCG.PIC.es")
		require.NoError(t, err)
		assert.Equal(t, Probing, s)

		_, err = reader.GetSiteStatus("LCG.Unknown.xx")
		assert.True(t, IsUnknownSite(err))

		p, err := reader.PartitionSites([]string{"LCG.CERN.ch", "LCG.RAL.uk", "LCG.PIC.es", "LCG.Unknown.xx"})
		require.NoError(t, err)
		assert.Equal(t, Partition{
			Active:  []string{"LCG.CERN.ch"},
			Banned:  []string{"LCG.RAL.uk"},
			Invalid: []string{"LCG.PIC.es", "LCG.Unknown.xx"},
		}, p)
	})
}

func TestRedisPublisher_ReplacesMirror(t *testing.T) {
	withRedisMirror(func(publisher *RedisPublisher, reader *RedisReader) {
		require.NoError(t, publisher.Publish([]Entry{{Site: "A", Status: Active}, {Site: "B", Status: Active}}))
		require.NoError(t, publisher.Publish([]Entry{{Site: "B", Status: Banned}}))

		mask, err := reader.GetMask(All)
		require.NoError(t, err)
		assert.Equal(t, []Entry{{Site: "B", Status: Banned}}, mask)

		require.NoError(t, publisher.Publish(nil))
		mask, err = reader.GetMask(All)
		require.NoError(t, err)
		assert.Empty(t, mask)
	})
}

func withRedisMirror(action func(publisher *RedisPublisher, reader *RedisReader)) {
	db, err := miniredis.Run()
	if err != nil {
		panic(err)
	}
	defer db.Close()

	client := redis.NewClient(&redis.Options{Addr: db.Addr()})
	defer client.Close()

	action(NewRedisPublisher(client, "SiteMask"), NewRedisReader(client, "SiteMask"))
}
