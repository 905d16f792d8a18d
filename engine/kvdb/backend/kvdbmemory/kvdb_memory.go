// Package kvdbmemory keeps KVDB items in process memory. It is used by single node setups and tests.
package kvdbmemory

import (
	"io"
	"sync"

	"github.com/petar/GoLLRB/llrb"

	"github.com/JavaProjektDEV/CloudNet-v3/engine/kvdb/types"
)

type memItem struct {
	key string
	val string
}

func (it memItem) Less(other llrb.Item) bool {
	return it.key < other.(memItem).key
}

type memoryKVDB struct {
	lock sync.RWMutex
	tree *llrb.LLRB
}

// OpenMemoryKVDB creates an empty in-memory KVDB
func OpenMemoryKVDB() kvdbtypes.KVDBEngine {
	return &memoryKVDB{tree: llrb.New()}
}

func (db *memoryKVDB) Get(key string) (string, error) {
	db.lock.RLock()
	defer db.lock.RUnlock()
	item := db.tree.Get(memItem{key: key})
	if item == nil {
		return "", nil
	}
	return item.(memItem).val, nil
}

func (db *memoryKVDB) Put(key string, val string) error {
	db.lock.Lock()
	db.tree.ReplaceOrInsert(memItem{key, val})
	db.lock.Unlock()
	return nil
}

func (db *memoryKVDB) Delete(key string) error {
	db.lock.Lock()
	db.tree.Delete(memItem{key: key})
	db.lock.Unlock()
	return nil
}

type memoryIterator struct {
	items []kvdbtypes.KVItem
}

func (it *memoryIterator) Next() (kvdbtypes.KVItem, error) {
	if len(it.items) == 0 {
		return kvdbtypes.KVItem{}, io.EOF
	}
	item := it.items[0]
	it.items = it.items[1:]
	return item, nil
}

func (db *memoryKVDB) Find(beginKey string, endKey string) (kvdbtypes.Iterator, error) {
	it := &memoryIterator{}
	db.lock.RLock()
	db.tree.AscendRange(memItem{key: beginKey}, memItem{key: endKey}, func(i llrb.Item) bool {
		mi := i.(memItem)
		it.items = append(it.items, kvdbtypes.KVItem{Key: mi.key, Val: mi.val})
		return true
	})
	db.lock.RUnlock()
	return it, nil
}

func (db *memoryKVDB) Close() {
}

func (db *memoryKVDB) IsConnectionError(err error) bool {
	return false
}
