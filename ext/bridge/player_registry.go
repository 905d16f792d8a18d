package bridge

import (
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	trie_tst "github.com/xiaonanln/go-trie-tst"

	"github.com/JavaProjektDEV/CloudNet-v3/engine/cnlog"
	"github.com/JavaProjektDEV/CloudNet-v3/engine/common"
	"github.com/JavaProjektDEV/CloudNet-v3/engine/consts"
	"github.com/JavaProjektDEV/CloudNet-v3/engine/document"
	"github.com/JavaProjektDEV/CloudNet-v3/engine/event"
	"github.com/JavaProjektDEV/CloudNet-v3/engine/kvdb"
	"github.com/JavaProjektDEV/CloudNet-v3/engine/messenger"
	"github.com/JavaProjektDEV/CloudNet-v3/engine/network"
	"github.com/JavaProjektDEV/CloudNet-v3/engine/query"
	"github.com/JavaProjektDEV/CloudNet-v3/engine/service"
)

const playerPrefix = "player/"

var packer = document.JSONMsgPacker{}

type playerSet map[uuid.UUID]struct{}

// PlayerRegistry holds the players of the node. Registered players are written through to the KVDB,
// online players live as long as the proxy they logged in with.
type PlayerRegistry struct {
	db *kvdb.KVDB

	lock    sync.RWMutex
	offline map[uuid.UUID]OfflinePlayer
	online  map[uuid.UUID]OnlinePlayer
	names   trie_tst.TST
}

// NewPlayerRegistry loads the registered players from the KVDB
func NewPlayerRegistry(db *kvdb.KVDB) (*PlayerRegistry, error) {
	r := &PlayerRegistry{
		db:      db,
		offline: map[uuid.UUID]OfflinePlayer{},
		online:  map[uuid.UUID]OnlinePlayer{},
	}
	items, err := db.GetPrefix(playerPrefix).GetErr(consts.QUERY_BULK_TIMEOUT)
	if err != nil {
		return nil, errors.Wrap(err, "load players")
	}
	for _, item := range items {
		doc, err := document.Decode(packer, []byte(item.Val))
		if err == nil {
			var p OfflinePlayer
			if p, err = OfflinePlayerFromDocument(doc); err == nil {
				r.offline[p.UniqueId] = p
				r.nameSet(p.Name).add(p.UniqueId)
				continue
			}
		}
		cnlog.Errorf("bridge: invalid player %s: %v", item.Key, err)
	}
	cnlog.Infof("bridge: %d registered players loaded", len(r.offline))
	return r, nil
}

func (s playerSet) add(id uuid.UUID) { s[id] = struct{}{} }

func (r *PlayerRegistry) nameSet(name string) playerSet {
	t := r.names.Sub(strings.ToLower(name))
	if t.Val == nil {
		set := playerSet{}
		t.Val = set
		return set
	}
	return t.Val.(playerSet)
}

func (r *PlayerRegistry) idsOfName(name string) []uuid.UUID {
	var ids []uuid.UUID
	for id := range r.nameSet(name) {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })
	return ids
}

func (r *PlayerRegistry) OnlineCount() int {
	r.lock.RLock()
	defer r.lock.RUnlock()
	return len(r.online)
}

func (r *PlayerRegistry) RegisteredCount() int64 {
	r.lock.RLock()
	defer r.lock.RUnlock()
	return int64(len(r.offline))
}

// OnlinePlayer returns the online player or false
func (r *PlayerRegistry) OnlinePlayer(id uuid.UUID) (OnlinePlayer, bool) {
	r.lock.RLock()
	defer r.lock.RUnlock()
	p, ok := r.online[id]
	return p.clone(), ok
}

// OnlinePlayersByName returns the online players of the name, ignoring case
func (r *PlayerRegistry) OnlinePlayersByName(name string) []OnlinePlayer {
	r.lock.Lock()
	defer r.lock.Unlock()
	var res []OnlinePlayer
	for _, id := range r.idsOfName(name) {
		if p, ok := r.online[id]; ok {
			res = append(res, p.clone())
		}
	}
	return res
}

func (r *PlayerRegistry) OnlinePlayersByEnvironment(env service.EnvironmentType) []OnlinePlayer {
	return r.filterOnline(func(p OnlinePlayer) bool { return p.inEnvironment(env) })
}

// OnlinePlayers returns all online players sorted by name
func (r *PlayerRegistry) OnlinePlayers() []OnlinePlayer {
	return r.filterOnline(func(OnlinePlayer) bool { return true })
}

func (r *PlayerRegistry) filterOnline(filter func(p OnlinePlayer) bool) []OnlinePlayer {
	r.lock.RLock()
	res := make([]OnlinePlayer, 0, len(r.online))
	for _, p := range r.online {
		if filter(p) {
			res = append(res, p.clone())
		}
	}
	r.lock.RUnlock()
	sort.Slice(res, func(i, j int) bool {
		if res[i].Name != res[j].Name {
			return res[i].Name < res[j].Name
		}
		return res[i].UniqueId.String() < res[j].UniqueId.String()
	})
	return res
}

// OfflinePlayer returns the registered player or false
func (r *PlayerRegistry) OfflinePlayer(id uuid.UUID) (OfflinePlayer, bool) {
	r.lock.RLock()
	defer r.lock.RUnlock()
	p, ok := r.offline[id]
	return p.clone(), ok
}

func (r *PlayerRegistry) OfflinePlayersByName(name string) []OfflinePlayer {
	r.lock.Lock()
	defer r.lock.Unlock()
	var res []OfflinePlayer
	for _, id := range r.idsOfName(name) {
		if p, ok := r.offline[id]; ok {
			res = append(res, p.clone())
		}
	}
	return res
}

// RegisteredPlayers returns all registered players sorted by name
func (r *PlayerRegistry) RegisteredPlayers() []OfflinePlayer {
	r.lock.RLock()
	res := make([]OfflinePlayer, 0, len(r.offline))
	for _, p := range r.offline {
		res = append(res, p.clone())
	}
	r.lock.RUnlock()
	sort.Slice(res, func(i, j int) bool {
		if res[i].Name != res[j].Name {
			return res[i].Name < res[j].Name
		}
		return res[i].UniqueId.String() < res[j].UniqueId.String()
	})
	return res
}

// UpdateOfflinePlayer stores the player record
func (r *PlayerRegistry) UpdateOfflinePlayer(p OfflinePlayer) error {
	p = p.clone()
	data, err := document.Encode(packer, p.ToDocument(), nil)
	if err != nil {
		return err
	}
	if _, err := r.db.Put(playerPrefix+p.UniqueId.String(), string(data)).GetErr(consts.QUERY_DEFAULT_TIMEOUT); err != nil {
		return errors.Wrapf(err, "write player %s", p.UniqueId)
	}

	r.lock.Lock()
	if old, ok := r.offline[p.UniqueId]; ok && !strings.EqualFold(old.Name, p.Name) {
		delete(r.nameSet(old.Name), p.UniqueId)
	}
	r.offline[p.UniqueId] = p
	r.nameSet(p.Name).add(p.UniqueId)
	if online, ok := r.online[p.UniqueId]; ok {
		online.OfflinePlayer = p
		r.online[p.UniqueId] = online
	}
	r.lock.Unlock()
	return nil
}

// UpdateOnlinePlayer marks the player online and stores its record
func (r *PlayerRegistry) UpdateOnlinePlayer(p OnlinePlayer) error {
	p = p.clone()
	r.lock.Lock()
	r.online[p.UniqueId] = p
	r.lock.Unlock()
	return r.UpdateOfflinePlayer(p.OfflinePlayer)
}

// RemoveOnlinePlayer marks the player offline and reports if it was online
func (r *PlayerRegistry) RemoveOnlinePlayer(id uuid.UUID) bool {
	r.lock.Lock()
	defer r.lock.Unlock()
	_, ok := r.online[id]
	delete(r.online, id)
	return ok
}

// removePlayersOfService marks the players logged in with the service offline
func (r *PlayerRegistry) removePlayersOfService(serviceId uuid.UUID) int {
	r.lock.Lock()
	defer r.lock.Unlock()
	var n int
	for id, p := range r.online {
		if p.LoginService.UniqueId == serviceId {
			delete(r.online, id)
			n++
		}
	}
	return n
}

func parseUniqueId(args document.Document) (uuid.UUID, error) {
	id, err := uuid.Parse(args.GetString("uniqueId"))
	if err != nil {
		return uuid.Nil, errors.Wrap(err, "invalid player unique id")
	}
	return id, nil
}

func onlinePlayersDocument(players []OnlinePlayer) document.Document {
	return document.Of("cloudPlayers", document.Documents(players))
}

func offlinePlayersDocument(players []OfflinePlayer) document.Document {
	return document.Of("offlineCloudPlayers", document.Documents(players))
}

// Register answers the player API with queries, receives player updates and relays proxy messages with m,
// and drops the online players of stopped proxies published on bus.
func (r *PlayerRegistry) Register(queries *query.Provider, m *messenger.Messenger, bus *event.Bus) (unregister func()) {
	handlers := map[string]query.Handler{
		OP_GET_ONLINE_COUNT: func(_ *network.Channel, _ document.Document) (document.Document, error) {
			return document.Of("onlineCount", r.OnlineCount()), nil
		},
		OP_GET_REGISTERED_COUNT: func(_ *network.Channel, _ document.Document) (document.Document, error) {
			return document.Of("registeredCount", r.RegisteredCount()), nil
		},
		OP_GET_ONLINE_PLAYER_BY_UUID: func(_ *network.Channel, args document.Document) (document.Document, error) {
			id, err := parseUniqueId(args)
			if err != nil {
				return nil, err
			}
			p, ok := r.OnlinePlayer(id)
			if !ok {
				return nil, errors.Wrapf(common.ErrNotFound, "online player %s", id)
			}
			return document.Of("cloudPlayer", map[string]interface{}(p.ToDocument())), nil
		},
		OP_GET_ONLINE_PLAYERS_BY_NAME: func(_ *network.Channel, args document.Document) (document.Document, error) {
			return onlinePlayersDocument(r.OnlinePlayersByName(args.GetString("name"))), nil
		},
		OP_GET_ONLINE_PLAYERS_BY_ENVIRONMENT: func(_ *network.Channel, args document.Document) (document.Document, error) {
			env := service.EnvironmentType(args.GetString("environment"))
			return onlinePlayersDocument(r.OnlinePlayersByEnvironment(env)), nil
		},
		OP_GET_ALL_ONLINE_PLAYERS: func(_ *network.Channel, _ document.Document) (document.Document, error) {
			return onlinePlayersDocument(r.OnlinePlayers()), nil
		},
		OP_GET_OFFLINE_PLAYER_BY_UUID: func(_ *network.Channel, args document.Document) (document.Document, error) {
			id, err := parseUniqueId(args)
			if err != nil {
				return nil, err
			}
			p, ok := r.OfflinePlayer(id)
			if !ok {
				return nil, errors.Wrapf(common.ErrNotFound, "player %s", id)
			}
			return document.Of("offlineCloudPlayer", map[string]interface{}(p.ToDocument())), nil
		},
		OP_GET_OFFLINE_PLAYERS_BY_NAME: func(_ *network.Channel, args document.Document) (document.Document, error) {
			return offlinePlayersDocument(r.OfflinePlayersByName(args.GetString("name"))), nil
		},
		OP_GET_ALL_REGISTERED_PLAYERS: func(_ *network.Channel, _ document.Document) (document.Document, error) {
			return offlinePlayersDocument(r.RegisteredPlayers()), nil
		},
	}
	for op, h := range handlers {
		queries.RegisterHandler(PLAYER_API_SUB_CHANNEL, op, h)
	}

	unlistenMessages := m.Listen(PLAYER_CHANNEL, "", func(msg *event.ChannelMessage) {
		r.handleMessage(m, msg)
	})
	unlistenLifeCycle := bus.Register(event.SERVICE_LIFECYCLE, func(ev *event.Event) {
		if ev.Service == nil || (ev.Service.LifeCycle != service.STOPPED && ev.Service.LifeCycle != service.DELETED) {
			return
		}
		if n := r.removePlayersOfService(ev.Service.ServiceId.UniqueId); n > 0 {
			cnlog.Infof("bridge: %d players of %s are offline", n, ev.Service.Name())
		}
	})

	return func() {
		queries.UnregisterSubChannel(PLAYER_API_SUB_CHANNEL)
		unlistenMessages()
		unlistenLifeCycle()
	}
}

func (r *PlayerRegistry) handleMessage(m *messenger.Messenger, msg *event.ChannelMessage) {
	var err error
	switch {
	case msg.Message == MSG_UPDATE_OFFLINE_PLAYER:
		var p OfflinePlayer
		if p, err = OfflinePlayerFromDocument(msg.Data.GetDocument("offlineCloudPlayer")); err == nil {
			err = r.UpdateOfflinePlayer(p)
		}
	case msg.Message == MSG_UPDATE_ONLINE_PLAYER:
		var p OnlinePlayer
		if p, err = OnlinePlayerFromDocument(msg.Data.GetDocument("cloudPlayer")); err == nil {
			err = r.UpdateOnlinePlayer(p)
		}
	case msg.Message == MSG_REMOVE_ONLINE_PLAYER:
		var id uuid.UUID
		if id, err = parseUniqueId(msg.Data); err == nil {
			r.RemoveOnlinePlayer(id)
		}
	case isProxyMessage(msg.Message):
		var n int
		n, err = m.SendChannelMessage(PLAYER_CHANNEL, msg.Message, msg.Data)
		cnlog.Debugf("bridge: %s of %s relayed to %d proxies", msg.Message, msg.Sender, n)
	default:
		cnlog.Debugf("bridge: ignored message %s of %s", msg.Message, msg.Sender)
	}
	if err != nil {
		cnlog.Warnf("bridge: %s of %s failed: %v", msg.Message, msg.Sender, err)
	}
}
