// Package kvdb is the key/value store of the node registries.
//
// All operations are queued and executed one by one by the KVDB routine, so callers never block on
// backend I/O. Results are delivered through async tasks.
package kvdb

import (
	"io"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"github.com/xiaonanln/go-xnsyncutil/xnsyncutil"

	"github.com/JavaProjektDEV/CloudNet-v3/engine/async"
	"github.com/JavaProjektDEV/CloudNet-v3/engine/cnlog"
	"github.com/JavaProjektDEV/CloudNet-v3/engine/cnutils"
	"github.com/JavaProjektDEV/CloudNet-v3/engine/consts"
	"github.com/JavaProjektDEV/CloudNet-v3/engine/kvdb/backend/kvdbmemory"
	"github.com/JavaProjektDEV/CloudNet-v3/engine/kvdb/backend/kvdbmongodb"
	"github.com/JavaProjektDEV/CloudNet-v3/engine/kvdb/backend/kvdbredis"
	"github.com/JavaProjektDEV/CloudNet-v3/engine/kvdb/backend/kvdbrediscluster"
	. "github.com/JavaProjektDEV/CloudNet-v3/engine/kvdb/types"
	"github.com/JavaProjektDEV/CloudNet-v3/engine/opmon"
)

// Options selects and configures the KVDB backend
type Options struct {
	Type       string // memory, redis, redis_cluster or mongodb
	URL        string // mongodb
	DB         string // mongodb database or redis db index
	Collection string // mongodb
	Host       string // redis
	StartNodes []string
}

// KVDB executes key/value operations on a backend engine
type KVDB struct {
	options    Options
	engine     KVDBEngine
	opQueue    *xnsyncutil.SyncQueue
	terminated *xnsyncutil.OneTimeCond

	recentWarnedQueueLen int
}

// Open creates the KVDB and starts its routine
func Open(options Options) (*KVDB, error) {
	db := &KVDB{
		options:    options,
		opQueue:    xnsyncutil.NewSyncQueue(),
		terminated: xnsyncutil.NewOneTimeCond(),
	}
	if err := db.assureEngineReady(); err != nil {
		return nil, err
	}
	go db.routine()
	return db, nil
}

// OpenEngine creates a KVDB running on an already opened engine
func OpenEngine(engine KVDBEngine) *KVDB {
	db := &KVDB{
		options:    Options{Type: "custom"},
		engine:     engine,
		opQueue:    xnsyncutil.NewSyncQueue(),
		terminated: xnsyncutil.NewOneTimeCond(),
	}
	go db.routine()
	return db
}

func openEngine(options Options) (KVDBEngine, error) {
	switch options.Type {
	case "", "memory":
		return kvdbmemory.OpenMemoryKVDB(), nil
	case "mongodb":
		return kvdbmongodb.OpenMongoKVDB(options.URL, options.DB, options.Collection)
	case "redis":
		dbindex := -1
		if options.DB != "" {
			var err error
			if dbindex, err = strconv.Atoi(options.DB); err != nil {
				return nil, errors.Wrapf(err, "redis db index %q", options.DB)
			}
		}
		return kvdbredis.OpenRedisKVDB(options.Host, dbindex)
	case "redis_cluster":
		return kvdbrediscluster.OpenRedisKVDB(options.StartNodes)
	default:
		return nil, errors.Errorf("KVDB type %s is not implemented", options.Type)
	}
}

func (db *KVDB) assureEngineReady() (err error) {
	if db.engine != nil {
		return
	}
	db.engine, err = openEngine(db.options)
	return
}

type getReq struct {
	key  string
	task *async.Task[string]
}

type putReq struct {
	key  string
	val  string
	task *async.Task[bool]
}

type deleteReq struct {
	key  string
	task *async.Task[bool]
}

type getRangeReq struct {
	beginKey string
	endKey   string
	task     *async.Task[[]KVItem]
}

// Get reads the value of key, "" if the key does not exist
func (db *KVDB) Get(key string) *async.Task[string] {
	req := &getReq{key, async.NewTask[string]()}
	db.push(req)
	return req.task
}

// Put writes the value of key
func (db *KVDB) Put(key string, val string) *async.Task[bool] {
	req := &putReq{key, val, async.NewTask[bool]()}
	db.push(req)
	return req.task
}

// Delete removes key
func (db *KVDB) Delete(key string) *async.Task[bool] {
	req := &deleteReq{key, async.NewTask[bool]()}
	db.push(req)
	return req.task
}

// GetRange reads all items with beginKey <= key < endKey in key order
func (db *KVDB) GetRange(beginKey string, endKey string) *async.Task[[]KVItem] {
	req := &getRangeReq{beginKey, endKey, async.NewTask[[]KVItem]()}
	db.push(req)
	return req.task
}

// GetPrefix reads all items whose key starts with prefix
func (db *KVDB) GetPrefix(prefix string) *async.Task[[]KVItem] {
	return db.GetRange(prefix, cnutils.PrefixEnd(prefix))
}

func (db *KVDB) push(req interface{}) {
	db.opQueue.Push(req)
	db.checkOperationQueueLen()
}

// Close stops the KVDB routine after all queued operations are executed
func (db *KVDB) Close() {
	db.opQueue.Close()
}

// WaitTerminated waits until the KVDB routine is terminated
func (db *KVDB) WaitTerminated() {
	db.terminated.Wait()
}

func (db *KVDB) checkOperationQueueLen() {
	qlen := db.opQueue.Len()
	if qlen > consts.ASYNC_JOB_QUEUE_MAXLEN/10 && qlen%100 == 0 && db.recentWarnedQueueLen != qlen {
		cnlog.Warnf("KVDB operation queue length = %d", qlen)
		db.recentWarnedQueueLen = qlen
	}
}

func (db *KVDB) routine() {
	defer db.terminated.Signal()
	for {
		if err := db.assureEngineReady(); err != nil {
			cnlog.Errorf("KVDB engine is not ready: %s", err)
			time.Sleep(consts.RECONNECT_INTERVAL)
			continue
		}

		req := db.opQueue.Pop()
		if req == nil { // queue is closed, returning nil
			db.engine.Close()
			return
		}

		var op *opmon.Operation
		var err error
		switch r := req.(type) {
		case *getReq:
			op = opmon.StartOperation("kvdb.get")
			var val string
			val, err = db.engine.Get(r.key)
			resolve(r.task, val, err)
		case *putReq:
			op = opmon.StartOperation("kvdb.put")
			err = db.engine.Put(r.key, r.val)
			resolve(r.task, err == nil, err)
		case *deleteReq:
			op = opmon.StartOperation("kvdb.delete")
			err = db.engine.Delete(r.key)
			resolve(r.task, err == nil, err)
		case *getRangeReq:
			op = opmon.StartOperation("kvdb.getRange")
			var items []KVItem
			items, err = db.getRange(r.beginKey, r.endKey)
			resolve(r.task, items, err)
		default:
			cnlog.Panicf("unknown KVDB request: %T", req)
		}
		op.Finish(time.Millisecond * 100)

		if err != nil && db.engine.IsConnectionError(err) {
			cnlog.Errorf("KVDB connection lost: %s", err)
			db.engine.Close()
			db.engine = nil
		}
	}
}

func (db *KVDB) getRange(beginKey, endKey string) ([]KVItem, error) {
	it, err := db.engine.Find(beginKey, endKey)
	if err != nil {
		return nil, err
	}
	var items []KVItem
	for {
		item, err := it.Next()
		if err == io.EOF {
			return items, nil
		}
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
}

func resolve[T any](task *async.Task[T], val T, err error) {
	if err != nil {
		task.Fail(err)
	} else {
		task.Complete(val)
	}
}
