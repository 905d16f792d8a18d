package kvdb

import (
	"fmt"
	"io"
	"math/rand"
	"os"
	"strconv"
	"strings"
	"testing"

	"github.com/JavaProjektDEV/CloudNet-v3/engine/kvdb/backend/kvdbmemory"
	"github.com/JavaProjektDEV/CloudNet-v3/engine/kvdb/backend/kvdbmongodb"
	"github.com/JavaProjektDEV/CloudNet-v3/engine/kvdb/backend/kvdbredis"
	"github.com/JavaProjektDEV/CloudNet-v3/engine/kvdb/backend/kvdbrediscluster"
	. "github.com/JavaProjektDEV/CloudNet-v3/engine/kvdb/types"
)

func TestMemoryBackend(t *testing.T) {
	testKVDBBackendSet(t, kvdbmemory.OpenMemoryKVDB())
	testBackendFind(t, kvdbmemory.OpenMemoryKVDB())
}

func TestMongoBackend(t *testing.T) {
	testKVDBBackendSet(t, openTestMongoKVDB(t))
	testBackendFind(t, openTestMongoKVDB(t))
}

func TestRedisBackend(t *testing.T) {
	testKVDBBackendSet(t, openTestRedisKVDB(t))
	testBackendFind(t, openTestRedisKVDB(t))
}

func TestRedisClusterBackend(t *testing.T) {
	testKVDBBackendSet(t, openTestRedisClusterKVDB(t))
	testBackendFind(t, openTestRedisClusterKVDB(t))
}

func testKVDBBackendSet(t *testing.T, kvdb KVDBEngine) {
	val, err := kvdb.Get("__key_not_exists__")
	if err != nil || val != "" {
		t.Fatal(err)
	}

	for i := 0; i < 100; i++ {
		key := strconv.Itoa(rand.Intn(10000))
		val := strconv.Itoa(rand.Intn(10000))
		if err = kvdb.Put(key, val); err != nil {
			t.Fatal(err)
		}
		verifyVal, err := kvdb.Get(key)
		if err != nil {
			t.Fatal(err)
		}
		if verifyVal != val {
			t.Errorf("%s != %s", val, verifyVal)
		}
	}

	if err := kvdb.Put("__deleted__", "1"); err != nil {
		t.Fatal(err)
	}
	if err := kvdb.Delete("__deleted__"); err != nil {
		t.Fatal(err)
	}
	if val, _ := kvdb.Get("__deleted__"); val != "" {
		t.Errorf("deleted key still has value %q", val)
	}
}

func testBackendFind(t *testing.T, kvdb KVDBEngine) {
	beginKey := strconv.Itoa(1000 + rand.Intn(2000-1000))
	endKey := strconv.Itoa(5000 + rand.Intn(5000))
	if len(beginKey) != 4 || len(endKey) != 4 {
		t.Fatalf("wrong keys: %s %s", beginKey, endKey)
	}
	if err := kvdb.Put(beginKey, beginKey); err != nil {
		t.Error(err)
	}
	if err := kvdb.Put(endKey, endKey); err != nil {
		t.Error(err)
	}

	it, err := kvdb.Find(beginKey, endKey)
	if err != nil {
		t.Fatal(err)
	}
	oldKey := ""
	beginKeyFound, endKeyFound := false, false
	for {
		item, err := it.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatal(err)
		}
		if item.Key <= oldKey {
			t.Errorf("keys are not in order: %s after %s", item.Key, oldKey)
		}
		oldKey = item.Key
		if item.Key == beginKey {
			beginKeyFound = true
		} else if item.Key == endKey {
			endKeyFound = true
		}
	}
	if !beginKeyFound {
		t.Errorf("begin key %s is not found", beginKey)
	}
	if endKeyFound {
		t.Errorf("end key %s should not be found", endKey)
	}
}

func openTestMongoKVDB(t *testing.T) KVDBEngine {
	url := os.Getenv("CLOUDNET_TEST_MONGODB")
	if url == "" {
		t.Skip("CLOUDNET_TEST_MONGODB is not set")
	}
	kvdb, err := kvdbmongodb.OpenMongoKVDB(url, "cloudnet_test", fmt.Sprintf("kv_%d", rand.Int()))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(kvdb.Close)
	return kvdb
}

func openTestRedisKVDB(t *testing.T) KVDBEngine {
	host := os.Getenv("CLOUDNET_TEST_REDIS")
	if host == "" {
		t.Skip("CLOUDNET_TEST_REDIS is not set")
	}
	kvdb, err := kvdbredis.OpenRedisKVDB(host, 0)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(kvdb.Close)
	return kvdb
}

func openTestRedisClusterKVDB(t *testing.T) KVDBEngine {
	nodes := os.Getenv("CLOUDNET_TEST_REDIS_CLUSTER")
	if nodes == "" {
		t.Skip("CLOUDNET_TEST_REDIS_CLUSTER is not set")
	}
	kvdb, err := kvdbrediscluster.OpenRedisKVDB(strings.Split(nodes, ","))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(kvdb.Close)
	return kvdb
}
