package query

import (
	"net"
	"sync"
	"testing"
	"time"

	"github.com/JavaProjektDEV/CloudNet-v3/engine/common"
	"github.com/JavaProjektDEV/CloudNet-v3/engine/consts"
	"github.com/JavaProjektDEV/CloudNet-v3/engine/document"
	"github.com/JavaProjektDEV/CloudNet-v3/engine/network"
	"github.com/bmizerany/assert"
	"github.com/pkg/errors"
)

type peer struct {
	ch       *network.Channel
	provider *Provider
}

// connectedPeers creates two channels connected by a pipe, each with its own provider
func connectedPeers(t *testing.T) (*peer, *peer) {
	c1, c2 := net.Pipe()
	a := &peer{provider: NewProvider()}
	b := &peer{provider: NewProvider()}
	da, db := network.NewDispatcher(), network.NewDispatcher()
	a.provider.Attach(da)
	b.provider.Attach(db)
	a.ch = network.NewChannel(c1, network.AuthInfo{Name: "node"}, da, false, "")
	b.ch = network.NewChannel(c2, network.AuthInfo{Name: "wrapper"}, db, false, "")
	a.ch.Start()
	b.ch.Start()
	t.Cleanup(func() {
		a.ch.Close()
		b.ch.Close()
	})
	return a, b
}

func intMapper(key string) func(document.Document) (int, error) {
	return func(doc document.Document) (int, error) {
		return doc.GetInt(key), nil
	}
}

func TestCallablePacket(t *testing.T) {
	a, b := connectedPeers(t)
	b.provider.RegisterHandler("test", "add", func(ch *network.Channel, args document.Document) (document.Document, error) {
		return document.Of("sum", args.GetInt("a")+args.GetInt("b")), nil
	})

	task := SendCallablePacket(a.provider, a.ch, "test", "add", document.Of("a", 1).Append("b", 2), intMapper("sum"))
	v, err := task.GetErr(5 * time.Second)
	assert.Equal(t, nil, err)
	assert.Equal(t, 3, v)
	assert.Equal(t, 0, a.provider.PendingCount())
}

func TestRemoteErrorAndUnknownOperation(t *testing.T) {
	a, b := connectedPeers(t)
	b.provider.RegisterHandler("test", "fail", func(ch *network.Channel, args document.Document) (document.Document, error) {
		return nil, errors.New("boom")
	})

	_, err := SendCallablePacket(a.provider, a.ch, "test", "fail", nil, intMapper("x")).GetErr(5 * time.Second)
	assert.Equal(t, common.ErrRemote, errors.Cause(err))

	_, err = SendCallablePacket(a.provider, a.ch, "test", "missing", nil, intMapper("x")).GetErr(5 * time.Second)
	assert.Equal(t, common.ErrRemote, errors.Cause(err))
}

func TestTimeoutReturnsDefaultAndDropsLateResponse(t *testing.T) {
	a, b := connectedPeers(t)
	never := make(chan struct{})
	t.Cleanup(func() { close(never) })
	b.provider.RegisterHandler("test", "never", func(ch *network.Channel, args document.Document) (document.Document, error) {
		<-never
		return nil, nil
	})

	start := time.Now()
	task := SendCallablePacket(a.provider, a.ch, "test", "never", nil, intMapper("x"))
	v := task.Get(consts.QUERY_DEFAULT_TIMEOUT+time.Second, -1)
	elapsed := time.Since(start)
	assert.Equal(t, -1, v)
	assert.T(t, elapsed >= consts.QUERY_DEFAULT_TIMEOUT)
	assert.T(t, elapsed < consts.QUERY_DEFAULT_TIMEOUT+time.Second)
	assert.Equal(t, 0, a.provider.PendingCount())

	_, err := task.GetErr(0)
	assert.Equal(t, true, common.IsTimeout(err))
}

func TestLateResponseDropped(t *testing.T) {
	a, b := connectedPeers(t)
	release := make(chan struct{})
	b.provider.RegisterHandler("test", "slow", func(ch *network.Channel, args document.Document) (document.Document, error) {
		<-release
		return document.Of("x", 1), nil
	})

	task := SendCallablePacketWithTimeout(a.provider, a.ch, "test", "slow", nil, 50*time.Millisecond, intMapper("x"))
	assert.Equal(t, -1, task.Get(time.Second, -1))
	close(release)

	// the late response must neither resolve the task again nor disturb later calls
	b.provider.RegisterHandler("test", "fast", func(ch *network.Channel, args document.Document) (document.Document, error) {
		return document.Of("x", 2), nil
	})
	v, err := SendCallablePacket(a.provider, a.ch, "test", "fast", nil, intMapper("x")).GetErr(5 * time.Second)
	assert.Equal(t, nil, err)
	assert.Equal(t, 2, v)
	assert.Equal(t, -1, task.Get(0, -1))
}

func TestGetTimeoutShorterThanSlotDropsLateResponse(t *testing.T) {
	a, b := connectedPeers(t)
	release := make(chan struct{})
	b.provider.RegisterHandler("test", "slow", func(ch *network.Channel, args document.Document) (document.Document, error) {
		<-release
		return document.Of("x", 7), nil
	})

	task := SendCallablePacket(a.provider, a.ch, "test", "slow", nil, intMapper("x"))
	assert.Equal(t, -1, task.Get(100*time.Millisecond, -1))
	assert.Equal(t, 0, a.provider.PendingCount())

	close(release)
	time.Sleep(200 * time.Millisecond)
	v, err := task.Result()
	assert.Equal(t, 0, v)
	assert.Equal(t, common.ErrTimeout, errors.Cause(err))
	assert.Equal(t, -1, task.Get(time.Second, -1))
	assert.Equal(t, 0, a.provider.PendingCount())
}

func TestChannelClosedFailsPending(t *testing.T) {
	a, b := connectedPeers(t)
	b.provider.RegisterHandler("test", "block", func(ch *network.Channel, args document.Document) (document.Document, error) {
		time.Sleep(time.Second)
		return nil, nil
	})

	task := SendCallablePacketWithTimeout(a.provider, a.ch, "test", "block", nil, time.Minute, intMapper("x"))
	time.Sleep(50 * time.Millisecond)
	b.ch.Close()

	_, err := task.GetErr(5 * time.Second)
	assert.Equal(t, true, common.IsChannelClosed(err))
	assert.Equal(t, 0, a.provider.PendingCount())

	_, err = SendCallablePacket(a.provider, a.ch, "test", "block", nil, intMapper("x")).GetErr(time.Second)
	assert.Equal(t, true, common.IsChannelClosed(err))
}

func TestConcurrentIdsAreDistinct(t *testing.T) {
	qp := NewProvider()
	var lock sync.Mutex
	ids := map[uint64]bool{}
	var wait sync.WaitGroup
	for g := 0; g < 8; g++ {
		wait.Add(1)
		go func() {
			defer wait.Done()
			for i := 0; i < 1000; i++ {
				id := qp.genId()
				lock.Lock()
				ids[id] = true
				lock.Unlock()
			}
		}()
	}
	wait.Wait()
	assert.Equal(t, 8000, len(ids))
}

func TestExactlyOneOutcome(t *testing.T) {
	a, b := connectedPeers(t)
	b.provider.RegisterHandler("test", "echo", func(ch *network.Channel, args document.Document) (document.Document, error) {
		if args.GetInt("i")%2 == 0 {
			time.Sleep(30 * time.Millisecond)
		}
		return args, nil
	})

	var wait sync.WaitGroup
	for i := 0; i < 20; i++ {
		i := i
		wait.Add(1)
		go func() {
			defer wait.Done()
			var outcomes int
			task := SendCallablePacketWithTimeout(a.provider, a.ch, "test", "echo", document.Of("i", i), 20*time.Millisecond, intMapper("i"))
			task.OnComplete(func(v int, err error) {
				outcomes++
				if err == nil {
					assert.Equal(t, i, v)
				} else {
					assert.Equal(t, true, common.IsTimeout(err))
				}
			})
			task.GetErr(time.Second)
			time.Sleep(100 * time.Millisecond)
			assert.Equal(t, 1, outcomes)
		}()
	}
	wait.Wait()
	assert.Equal(t, 0, a.provider.PendingCount())
}
