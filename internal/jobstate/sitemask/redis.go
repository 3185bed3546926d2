package sitemask

import (
	"encoding/json"

	"github.com/go-redis/redis"
	"github.com/pkg/errors"
)

// RedisPublisher mirrors the live site mask into a redis hash keyed by site. The postgres
// table stays authoritative; the mirror lets the matcher read the mask without touching it.
type RedisPublisher struct {
	db  redis.UniversalClient
	key string
}

func NewRedisPublisher(db redis.UniversalClient, key string) *RedisPublisher {
	return &RedisPublisher{db: db, key: key}
}

// Publish replaces the mirrored mask with entries.
func (r *RedisPublisher) Publish(entries []Entry) error {
	values := make(map[string]interface{}, len(entries))
	for _, e := range entries {
		data, err := json.Marshal(e)
		if err != nil {
			return errors.WithStack(err)
		}
		values[e.Site] = data
	}

	pipe := r.db.TxPipeline()
	pipe.Del(r.key)
	if len(values) > 0 {
		pipe.HMSet(r.key, values)
	}
	_, err := pipe.Exec()
	return errors.WithStack(err)
}

// RedisReader answers site mask queries from the mirror.
type RedisReader struct {
	db  redis.UniversalClient
	key string
}

func NewRedisReader(db redis.UniversalClient, key string) *RedisReader {
	return &RedisReader{db: db, key: key}
}

func (r *RedisReader) load() ([]Entry, error) {
	result, err := r.db.HGetAll(r.key).Result()
	if err != nil {
		return nil, errors.WithStack(err)
	}
	entries := make([]Entry, 0, len(result))
	for site, v := range result {
		e := Entry{}
		if err := json.Unmarshal([]byte(v), &e); err != nil {
			return nil, errors.Wrapf(err, "decoding mirrored entry for site %s", site)
		}
		entries = append(entries, e)
	}
	return entries, nil
}

func (r *RedisReader) GetMask(filter Filter) ([]Entry, error) {
	entries, err := r.load()
	if err != nil {
		return nil, err
	}
	return FilterEntries(entries, filter), nil
}

func (r *RedisReader) GetSiteStatus(site string) (Status, error) {
	v, err := r.db.HGet(r.key, site).Result()
	if err == redis.Nil {
		return "", UnknownSite(site)
	}
	if err != nil {
		return "", errors.WithStack(err)
	}
	e := Entry{}
	if err := json.Unmarshal([]byte(v), &e); err != nil {
		return "", errors.Wrapf(err, "decoding mirrored entry for site %s", site)
	}
	return e.Status, nil
}

func (r *RedisReader) PartitionSites(sites []string) (Partition, error) {
	entries, err := r.load()
	if err != nil {
		return Partition{}, err
	}
	known := make(map[string]Status, len(entries))
	for _, e := range entries {
		known[e.Site] = e.Status
	}
	return PartitionSites(sites, known), nil
}
