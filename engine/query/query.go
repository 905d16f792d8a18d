// Package query implements request/response calls over channels.
//
// A callable packet carries a correlation id; the responder sends back a response packet with the
// same id. Every pending call owns a timer and resolves exactly once: with the mapped response,
// with common.ErrTimeout when the timer fires first, or with common.ErrChannelClosed when the
// channel drops. Responses arriving after that are dropped.
package query

import (
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"github.com/JavaProjektDEV/CloudNet-v3/engine/async"
	"github.com/JavaProjektDEV/CloudNet-v3/engine/cnlog"
	"github.com/JavaProjektDEV/CloudNet-v3/engine/common"
	"github.com/JavaProjektDEV/CloudNet-v3/engine/consts"
	"github.com/JavaProjektDEV/CloudNet-v3/engine/document"
	"github.com/JavaProjektDEV/CloudNet-v3/engine/network"
	"github.com/JavaProjektDEV/CloudNet-v3/engine/opmon"
	"github.com/JavaProjektDEV/CloudNet-v3/engine/proto"
)

// Handler answers one operation of a sub channel
type Handler func(ch *network.Channel, args document.Document) (document.Document, error)

type pendingQuery struct {
	channelId string
	operation string
	timer     *time.Timer
	op        *opmon.Operation
	resolve   func(packet *proto.Packet, err error)
}

// Provider sends callable packets and answers the ones it has handlers for
type Provider struct {
	nextId uint64

	lock    sync.Mutex
	pending map[uint64]*pendingQuery
	watched map[string]bool

	handlersLock sync.RWMutex
	handlers     map[string]map[string]Handler
}

// NewProvider creates a query provider
func NewProvider() *Provider {
	return &Provider{
		nextId:   rand.Uint64(),
		pending:  map[uint64]*pendingQuery{},
		watched:  map[string]bool{},
		handlers: map[string]map[string]Handler{},
	}
}

// Attach makes the provider receive query packets of the dispatcher
func (qp *Provider) Attach(dispatcher *network.Dispatcher) {
	dispatcher.AddListener(consts.QUERY_CHANNEL, qp)
}

// RegisterHandler registers the handler of an operation of a sub channel
func (qp *Provider) RegisterHandler(subChannel string, operation string, handler Handler) {
	qp.handlersLock.Lock()
	ops := qp.handlers[subChannel]
	if ops == nil {
		ops = map[string]Handler{}
		qp.handlers[subChannel] = ops
	}
	ops[operation] = handler
	qp.handlersLock.Unlock()
}

// UnregisterSubChannel removes the handlers of all operations of the sub channel
func (qp *Provider) UnregisterSubChannel(subChannel string) {
	qp.handlersLock.Lock()
	delete(qp.handlers, subChannel)
	qp.handlersLock.Unlock()
}

// PendingCount returns the number of unresolved calls
func (qp *Provider) PendingCount() int {
	qp.lock.Lock()
	defer qp.lock.Unlock()
	return len(qp.pending)
}

func (qp *Provider) genId() uint64 {
	return atomic.AddUint64(&qp.nextId, 1)
}

// SendCallablePacket calls the operation of the sub channel on the peer of ch with the default timeout.
// The response body document is converted by mapper.
func SendCallablePacket[T any](qp *Provider, ch *network.Channel, subChannel string, operation string,
	payload document.Document, mapper func(document.Document) (T, error)) *async.Task[T] {
	return SendCallablePacketWithTimeout(qp, ch, subChannel, operation, payload, consts.QUERY_DEFAULT_TIMEOUT, mapper)
}

// SendCallablePacketWithTimeout is SendCallablePacket with an explicit timeout
func SendCallablePacketWithTimeout[T any](qp *Provider, ch *network.Channel, subChannel string, operation string,
	payload document.Document, timeout time.Duration, mapper func(document.Document) (T, error)) *async.Task[T] {
	task := async.NewTask[T]()
	if ch == nil || ch.IsClosed() {
		task.Fail(errors.Wrapf(common.ErrChannelClosed, "%s/%s", subChannel, operation))
		return task
	}

	body, err := document.Encode(document.MSG_PACKER, payload, nil)
	if err != nil {
		task.Fail(errors.Wrapf(err, "encode %s/%s", subChannel, operation))
		return task
	}

	id := qp.genId()
	pq := &pendingQuery{
		channelId: ch.ID(),
		operation: operation,
		op:        opmon.StartOperation("query." + operation),
		resolve: func(packet *proto.Packet, err error) {
			if err != nil {
				task.Fail(err)
				return
			}
			if remoteErr := packet.Header.GetString(proto.HEADER_ERROR); remoteErr != "" {
				task.Fail(errors.Wrapf(common.ErrRemote, "%s/%s: %s", subChannel, operation, remoteErr))
				return
			}
			doc, err := packet.BodyDocument()
			if err != nil {
				task.Fail(err)
				return
			}
			v, err := mapper(doc)
			if err != nil {
				task.Fail(errors.Wrapf(err, "map response of %s/%s", subChannel, operation))
				return
			}
			task.Complete(v)
		},
	}

	qp.lock.Lock()
	qp.pending[id] = pq
	pq.timer = time.AfterFunc(timeout, func() {
		if qp.evict(id) != nil {
			cnlog.Debugf("query %d %s/%s on %s timed out after %s", id, subChannel, operation, ch, timeout)
			pq.resolve(nil, errors.Wrapf(common.ErrTimeout, "%s/%s after %s", subChannel, operation, timeout))
		}
	})
	qp.lock.Unlock()
	// a task resolved by its caller, e.g. on a Get timeout, frees the slot and drops the late response
	task.OnComplete(func(T, error) { qp.evict(id) })
	qp.watchChannel(ch)

	header := document.New().
		Append(proto.HEADER_SUB_CHANNEL, subChannel).
		Append(proto.HEADER_OPERATION, operation)
	if consts.DEBUG_QUERIES {
		cnlog.Debugf("query %d %s/%s -> %s", id, subChannel, operation, ch)
	}
	if err := ch.SendPacket(proto.NewQueryPacket(consts.QUERY_CHANNEL, id, header, body)); err != nil {
		if qp.evict(id) != nil {
			pq.resolve(nil, errors.Wrapf(err, "send %s/%s", subChannel, operation))
		}
	}
	return task
}

// evict removes the pending slot and stops its timer. Only the caller that evicted the slot may resolve it.
func (qp *Provider) evict(id uint64) *pendingQuery {
	qp.lock.Lock()
	pq := qp.pending[id]
	delete(qp.pending, id)
	qp.lock.Unlock()
	if pq != nil {
		pq.timer.Stop()
		pq.op.Finish(consts.QUERY_DEFAULT_TIMEOUT)
	}
	return pq
}

func (qp *Provider) watchChannel(ch *network.Channel) {
	qp.lock.Lock()
	watch := !qp.watched[ch.ID()]
	qp.watched[ch.ID()] = true
	qp.lock.Unlock()

	if watch {
		ch.AddCloseListener(qp.onChannelClosed)
	}
}

func (qp *Provider) onChannelClosed(ch *network.Channel) {
	async.CloseGroup(requestGroup(ch))

	var ids []uint64
	qp.lock.Lock()
	delete(qp.watched, ch.ID())
	for id, pq := range qp.pending {
		if pq.channelId == ch.ID() {
			ids = append(ids, id)
		}
	}
	qp.lock.Unlock()

	for _, id := range ids {
		if pq := qp.evict(id); pq != nil {
			pq.resolve(nil, errors.Wrapf(common.ErrChannelClosed, "%s on %s", pq.operation, ch))
		}
	}
}

// HandlePacket receives responses and requests of the query channel
func (qp *Provider) HandlePacket(ch *network.Channel, packet *proto.Packet) {
	if !packet.HasID {
		cnlog.Warnf("%s: query packet without id: %s", ch, packet)
		return
	}
	if packet.Response {
		pq := qp.evict(packet.ID)
		if pq == nil {
			cnlog.Debugf("%s: dropped late or unknown response %d", ch, packet.ID)
			return
		}
		pq.resolve(packet, nil)
		return
	}

	// requests run on their own group so that handlers waiting for other responses do not block the channel
	qp.watchChannel(ch)
	async.Run(requestGroup(ch), func() {
		qp.handleRequest(ch, packet)
	})
}

func requestGroup(ch *network.Channel) string {
	return "query:" + ch.ID()
}

func (qp *Provider) handleRequest(ch *network.Channel, packet *proto.Packet) {
	subChannel := packet.Header.GetString(proto.HEADER_SUB_CHANNEL)
	operation := packet.Header.GetString(proto.HEADER_OPERATION)

	qp.handlersLock.RLock()
	handler := qp.handlers[subChannel][operation]
	qp.handlersLock.RUnlock()

	var result document.Document
	var err error
	if handler == nil {
		err = errors.Errorf("unknown operation %s/%s", subChannel, operation)
	} else {
		args, derr := packet.BodyDocument()
		if derr != nil {
			err = derr
		} else {
			result, err = callHandler(handler, ch, args)
		}
	}

	header := document.New()
	var body []byte
	if err != nil {
		cnlog.Warnf("%s: query %s/%s failed: %v", ch, subChannel, operation, err)
		header.Append(proto.HEADER_ERROR, err.Error())
	} else if body, err = document.Encode(document.MSG_PACKER, result, nil); err != nil {
		header.Append(proto.HEADER_ERROR, err.Error())
		body = nil
	}
	if err := ch.SendPacket(packet.NewResponse(header, body)); err != nil {
		cnlog.Debugf("%s: response of %s/%s not sent: %v", ch, subChannel, operation, err)
	}
}

func callHandler(handler Handler, ch *network.Channel, args document.Document) (result document.Document, err error) {
	defer func() {
		if perr := recover(); perr != nil {
			cnlog.TraceError("query handler paniced: %v", perr)
			err = errors.Errorf("handler paniced: %v", perr)
		}
	}()
	return handler(ch, args)
}
