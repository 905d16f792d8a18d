package kvdb

import (
	"testing"
	"time"

	"github.com/bmizerany/assert"

	"github.com/JavaProjektDEV/CloudNet-v3/engine/kvdb/types"
)

func openTestKVDB(t *testing.T) *KVDB {
	db, err := Open(Options{Type: "memory"})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		db.Close()
		db.WaitTerminated()
	})
	return db
}

func TestBasic(t *testing.T) {
	db := openTestKVDB(t)

	val, err := db.Get("__key_not_exists__").GetErr(time.Second)
	assert.Equal(t, nil, err)
	assert.Equal(t, "", val)

	_, err = db.Put("group/Lobby", "lobby").GetErr(time.Second)
	assert.Equal(t, nil, err)
	val, err = db.Get("group/Lobby").GetErr(time.Second)
	assert.Equal(t, nil, err)
	assert.Equal(t, "lobby", val)

	_, err = db.Delete("group/Lobby").GetErr(time.Second)
	assert.Equal(t, nil, err)
	assert.Equal(t, "", db.Get("group/Lobby").Get(time.Second, "?"))
}

func TestGetPrefix(t *testing.T) {
	db := openTestKVDB(t)
	for _, key := range []string{"task/Proxy", "group/b", "group/a", "groupx", "task/Lobby"} {
		db.Put(key, key)
	}

	items, err := db.GetPrefix("group/").GetErr(time.Second)
	assert.Equal(t, nil, err)
	assert.Equal(t, []kvdbtypes.KVItem{{Key: "group/a", Val: "group/a"}, {Key: "group/b", Val: "group/b"}}, items)

	items, err = db.GetRange("task/", "task/M").GetErr(time.Second)
	assert.Equal(t, nil, err)
	assert.Equal(t, 1, len(items))
	assert.Equal(t, "task/Lobby", items[0].Key)
}

func TestOperationsKeepOrder(t *testing.T) {
	db := openTestKVDB(t)
	for i := 0; i < 100; i++ {
		db.Put("counter", string(rune('a'+i%26)))
	}
	last := db.Get("counter")
	assert.Equal(t, string(rune('a'+99%26)), last.Get(time.Second, ""))
}

func TestUnknownType(t *testing.T) {
	_, err := Open(Options{Type: "leveldb"})
	assert.NotEqual(t, nil, err)
}
