package kvdbrediscluster

import (
	"io"
	"sort"
	"time"

	rediscluster "github.com/chasex/redis-go-cluster"
	"github.com/garyburd/redigo/redis"
	"github.com/pkg/errors"

	"github.com/JavaProjektDEV/CloudNet-v3/engine/kvdb/types"
)

const (
	keyPrefix = "_CN_KV_"
	// indexKey is a set of all keys, cluster nodes can not be scanned as a whole
	indexKey = "_CN_KV_INDEX_"
)

type redisClusterKVDB struct {
	c rediscluster.Cluster
}

// OpenRedisKVDB opens Redis cluster for KVDB backend
func OpenRedisKVDB(startNodes []string) (kvdbtypes.KVDBEngine, error) {
	c, err := rediscluster.NewCluster(&rediscluster.Options{
		StartNodes:   startNodes,
		ConnTimeout:  10 * time.Second, // Connection timeout
		ReadTimeout:  60 * time.Second, // Read timeout
		WriteTimeout: 60 * time.Second, // Write timeout
		KeepAlive:    1,                // Maximum keep alive connecion in each node
		AliveTime:    10 * time.Minute, // Keep alive timeout
	})
	if err != nil {
		return nil, errors.Wrap(err, "connect redis cluster failed")
	}

	return &redisClusterKVDB{
		c: c,
	}, nil
}

func (db *redisClusterKVDB) Get(key string) (val string, err error) {
	r, err := db.c.Do("GET", keyPrefix+key)
	if err != nil {
		return "", err
	}
	if r == nil {
		return "", nil
	}
	return redis.String(r, nil)
}

func (db *redisClusterKVDB) Put(key string, val string) error {
	if _, err := db.c.Do("SET", keyPrefix+key, val); err != nil {
		return err
	}
	_, err := db.c.Do("SADD", indexKey, key)
	return err
}

func (db *redisClusterKVDB) Delete(key string) error {
	if _, err := db.c.Do("DEL", keyPrefix+key); err != nil {
		return err
	}
	_, err := db.c.Do("SREM", indexKey, key)
	return err
}

type redisClusterKVDBIterator struct {
	db       *redisClusterKVDB
	leftKeys []string
}

func (it *redisClusterKVDBIterator) Next() (kvdbtypes.KVItem, error) {
	for len(it.leftKeys) > 0 {
		key := it.leftKeys[0]
		it.leftKeys = it.leftKeys[1:]
		val, err := it.db.Get(key)
		if err != nil {
			return kvdbtypes.KVItem{}, err
		}
		if val == "" {
			continue
		}
		return kvdbtypes.KVItem{Key: key, Val: val}, nil
	}
	return kvdbtypes.KVItem{}, io.EOF
}

func (db *redisClusterKVDB) Find(beginKey string, endKey string) (kvdbtypes.Iterator, error) {
	all, err := redis.Strings(db.c.Do("SMEMBERS", indexKey))
	if err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(all))
	for _, key := range all {
		if key >= beginKey && key < endKey {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return &redisClusterKVDBIterator{
		db:       db,
		leftKeys: keys,
	}, nil
}

func (db *redisClusterKVDB) Close() {
	// rediscluster.Cluster has no Close method; connections are managed by the library
}

func (db *redisClusterKVDB) IsConnectionError(err error) bool {
	return err == io.EOF || err == io.ErrUnexpectedEOF
}
