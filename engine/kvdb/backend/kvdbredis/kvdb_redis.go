package kvdbredis

import (
	"io"
	"sync"

	"github.com/garyburd/redigo/redis"
	"github.com/petar/GoLLRB/llrb"
	"github.com/pkg/errors"

	"github.com/JavaProjektDEV/CloudNet-v3/engine/kvdb/types"
)

const (
	keyPrefix = "_CN_KV_"
)

// redisKVDB keeps the sorted key set in memory since redis can not scan keys in order
type redisKVDB struct {
	lock    sync.Mutex
	c       redis.Conn
	keyTree *llrb.LLRB
}

type keyTreeItem struct {
	key string
}

func (ki keyTreeItem) Less(other llrb.Item) bool {
	return ki.key < other.(keyTreeItem).key
}

// OpenRedisKVDB opens Redis for KVDB backend
func OpenRedisKVDB(host string, dbindex int) (kvdbtypes.KVDBEngine, error) {
	c, err := redis.Dial("tcp", host)
	if err != nil {
		return nil, errors.Wrap(err, "redis dial failed")
	}

	db := &redisKVDB{
		c:       c,
		keyTree: llrb.New(),
	}
	if err := db.initialize(dbindex); err != nil {
		c.Close()
		return nil, errors.Wrap(err, "redis kvdb initialize failed")
	}
	return db, nil
}

func (db *redisKVDB) initialize(dbindex int) error {
	if dbindex >= 0 {
		if _, err := db.c.Do("SELECT", dbindex); err != nil {
			return err
		}
	}

	keyMatch := keyPrefix + "*"
	cursor := interface{}("0")
	for {
		r, err := redis.Values(db.c.Do("SCAN", cursor, "MATCH", keyMatch, "COUNT", 10000))
		if err != nil {
			return err
		}
		keys, err := redis.Strings(r[1], nil)
		if err != nil {
			return err
		}
		for _, key := range keys {
			db.keyTree.ReplaceOrInsert(keyTreeItem{key[len(keyPrefix):]})
		}

		cursor = r[0]
		if isZeroCursor(cursor) {
			break
		}
	}
	return nil
}

func isZeroCursor(c interface{}) bool {
	return string(c.([]byte)) == "0"
}

func (db *redisKVDB) Get(key string) (val string, err error) {
	db.lock.Lock()
	defer db.lock.Unlock()
	return db.get(key)
}

func (db *redisKVDB) get(key string) (string, error) {
	r, err := db.c.Do("GET", keyPrefix+key)
	if err != nil {
		return "", err
	}
	if r == nil {
		return "", nil
	}
	return redis.String(r, nil)
}

func (db *redisKVDB) Put(key string, val string) error {
	db.lock.Lock()
	defer db.lock.Unlock()
	_, err := db.c.Do("SET", keyPrefix+key, val)
	if err == nil {
		db.keyTree.ReplaceOrInsert(keyTreeItem{key})
	}
	return err
}

func (db *redisKVDB) Delete(key string) error {
	db.lock.Lock()
	defer db.lock.Unlock()
	_, err := db.c.Do("DEL", keyPrefix+key)
	if err == nil {
		db.keyTree.Delete(keyTreeItem{key})
	}
	return err
}

type redisKVDBIterator struct {
	db       *redisKVDB
	leftKeys []string
}

func (it *redisKVDBIterator) Next() (kvdbtypes.KVItem, error) {
	for len(it.leftKeys) > 0 {
		key := it.leftKeys[0]
		it.leftKeys = it.leftKeys[1:]
		val, err := it.db.Get(key)
		if err != nil {
			return kvdbtypes.KVItem{}, err
		}
		if val == "" {
			// deleted after Find
			continue
		}
		return kvdbtypes.KVItem{Key: key, Val: val}, nil
	}
	return kvdbtypes.KVItem{}, io.EOF
}

func (db *redisKVDB) Find(beginKey string, endKey string) (kvdbtypes.Iterator, error) {
	var keys []string // all keys in the range, ordered
	db.lock.Lock()
	db.keyTree.AscendRange(keyTreeItem{beginKey}, keyTreeItem{endKey}, func(it llrb.Item) bool {
		keys = append(keys, it.(keyTreeItem).key)
		return true
	})
	db.lock.Unlock()

	return &redisKVDBIterator{
		db:       db,
		leftKeys: keys,
	}, nil
}

func (db *redisKVDB) Close() {
	db.c.Close()
}

func (db *redisKVDB) IsConnectionError(err error) bool {
	return err == io.EOF || err == io.ErrUnexpectedEOF
}
