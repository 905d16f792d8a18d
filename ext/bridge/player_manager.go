package bridge

import (
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/JavaProjektDEV/CloudNet-v3/engine/async"
	"github.com/JavaProjektDEV/CloudNet-v3/engine/common"
	"github.com/JavaProjektDEV/CloudNet-v3/engine/consts"
	"github.com/JavaProjektDEV/CloudNet-v3/engine/document"
	"github.com/JavaProjektDEV/CloudNet-v3/engine/messenger"
	"github.com/JavaProjektDEV/CloudNet-v3/engine/network"
	"github.com/JavaProjektDEV/CloudNet-v3/engine/query"
	"github.com/JavaProjektDEV/CloudNet-v3/engine/service"
)

// ChannelProvider returns the channel to the node, network.Client implements it
type ChannelProvider interface {
	Channel() *network.Channel
}

// PlayerManager is the player API of services. Queries are answered by the PlayerRegistry of the node,
// messages are sent to the node which relays the proxy messages to every subscribed proxy.
type PlayerManager struct {
	queries   *query.Provider
	messenger *messenger.Messenger
	node      ChannelProvider
}

// NewPlayerManager creates the player API over the channel to the node
func NewPlayerManager(queries *query.Provider, m *messenger.Messenger, node ChannelProvider) *PlayerManager {
	return &PlayerManager{queries: queries, messenger: m, node: node}
}

func callPlayerAPI[T any](pm *PlayerManager, operation string, args document.Document, timeout time.Duration,
	mapper func(document.Document) (T, error)) *async.Task[T] {
	return query.SendCallablePacketWithTimeout(pm.queries, pm.node.Channel(), PLAYER_API_SUB_CHANNEL, operation, args, timeout, mapper)
}

func onlinePlayerMapper(doc document.Document) (OnlinePlayer, error) {
	player := doc.GetDocument("cloudPlayer")
	if player == nil {
		return OnlinePlayer{}, errors.WithStack(common.ErrNotFound)
	}
	return OnlinePlayerFromDocument(player)
}

func onlinePlayersMapper(doc document.Document) ([]OnlinePlayer, error) {
	return playersFromDocuments(doc.GetDocuments("cloudPlayers"), OnlinePlayerFromDocument)
}

func offlinePlayerMapper(doc document.Document) (OfflinePlayer, error) {
	player := doc.GetDocument("offlineCloudPlayer")
	if player == nil {
		return OfflinePlayer{}, errors.WithStack(common.ErrNotFound)
	}
	return OfflinePlayerFromDocument(player)
}

func offlinePlayersMapper(doc document.Document) ([]OfflinePlayer, error) {
	return playersFromDocuments(doc.GetDocuments("offlineCloudPlayers"), OfflinePlayerFromDocument)
}

// GetOnlineCountAsync returns the number of online players
func (pm *PlayerManager) GetOnlineCountAsync() *async.Task[int] {
	return callPlayerAPI(pm, OP_GET_ONLINE_COUNT, document.New(), consts.QUERY_DEFAULT_TIMEOUT,
		func(doc document.Document) (int, error) { return doc.GetInt("onlineCount"), nil })
}

// GetOnlineCount returns the number of online players
func (pm *PlayerManager) GetOnlineCount() (int, error) {
	return pm.GetOnlineCountAsync().GetErr(consts.QUERY_DEFAULT_TIMEOUT)
}

// GetRegisteredCountAsync returns the number of players who ever joined
func (pm *PlayerManager) GetRegisteredCountAsync() *async.Task[int64] {
	return callPlayerAPI(pm, OP_GET_REGISTERED_COUNT, document.New(), consts.QUERY_DEFAULT_TIMEOUT,
		func(doc document.Document) (int64, error) { return doc.GetInt64("registeredCount"), nil })
}

// GetRegisteredCount returns the number of players who ever joined
func (pm *PlayerManager) GetRegisteredCount() (int64, error) {
	return pm.GetRegisteredCountAsync().GetErr(consts.QUERY_DEFAULT_TIMEOUT)
}

// GetOnlinePlayerAsync fails with common.ErrNotFound if the player is not online
func (pm *PlayerManager) GetOnlinePlayerAsync(uniqueId uuid.UUID) *async.Task[OnlinePlayer] {
	return callPlayerAPI(pm, OP_GET_ONLINE_PLAYER_BY_UUID, document.Of("uniqueId", uniqueId.String()), consts.QUERY_DEFAULT_TIMEOUT,
		onlinePlayerMapper)
}

func (pm *PlayerManager) GetOnlinePlayer(uniqueId uuid.UUID) (OnlinePlayer, error) {
	return pm.GetOnlinePlayerAsync(uniqueId).GetErr(consts.QUERY_DEFAULT_TIMEOUT)
}

// GetOnlinePlayersAsync returns the online players of the name, ignoring case
func (pm *PlayerManager) GetOnlinePlayersAsync(name string) *async.Task[[]OnlinePlayer] {
	return callPlayerAPI(pm, OP_GET_ONLINE_PLAYERS_BY_NAME, document.Of("name", name), consts.QUERY_DEFAULT_TIMEOUT,
		onlinePlayersMapper)
}

func (pm *PlayerManager) GetOnlinePlayers(name string) ([]OnlinePlayer, error) {
	return pm.GetOnlinePlayersAsync(name).GetErr(consts.QUERY_DEFAULT_TIMEOUT)
}

// GetOnlinePlayersByEnvironmentAsync returns the online players connected through or to a service of the environment
func (pm *PlayerManager) GetOnlinePlayersByEnvironmentAsync(env service.EnvironmentType) *async.Task[[]OnlinePlayer] {
	return callPlayerAPI(pm, OP_GET_ONLINE_PLAYERS_BY_ENVIRONMENT, document.Of("environment", string(env)), consts.QUERY_DEFAULT_TIMEOUT,
		onlinePlayersMapper)
}

func (pm *PlayerManager) GetOnlinePlayersByEnvironment(env service.EnvironmentType) ([]OnlinePlayer, error) {
	return pm.GetOnlinePlayersByEnvironmentAsync(env).GetErr(consts.QUERY_DEFAULT_TIMEOUT)
}

func (pm *PlayerManager) GetAllOnlinePlayersAsync() *async.Task[[]OnlinePlayer] {
	return callPlayerAPI(pm, OP_GET_ALL_ONLINE_PLAYERS, document.New(), consts.QUERY_DEFAULT_TIMEOUT, onlinePlayersMapper)
}

func (pm *PlayerManager) GetAllOnlinePlayers() ([]OnlinePlayer, error) {
	return pm.GetAllOnlinePlayersAsync().GetErr(consts.QUERY_DEFAULT_TIMEOUT)
}

// GetOfflinePlayerAsync fails with common.ErrNotFound if the player never joined
func (pm *PlayerManager) GetOfflinePlayerAsync(uniqueId uuid.UUID) *async.Task[OfflinePlayer] {
	return callPlayerAPI(pm, OP_GET_OFFLINE_PLAYER_BY_UUID, document.Of("uniqueId", uniqueId.String()), consts.QUERY_DEFAULT_TIMEOUT,
		offlinePlayerMapper)
}

func (pm *PlayerManager) GetOfflinePlayer(uniqueId uuid.UUID) (OfflinePlayer, error) {
	return pm.GetOfflinePlayerAsync(uniqueId).GetErr(consts.QUERY_DEFAULT_TIMEOUT)
}

func (pm *PlayerManager) GetOfflinePlayersAsync(name string) *async.Task[[]OfflinePlayer] {
	return callPlayerAPI(pm, OP_GET_OFFLINE_PLAYERS_BY_NAME, document.Of("name", name), consts.QUERY_DEFAULT_TIMEOUT,
		offlinePlayersMapper)
}

func (pm *PlayerManager) GetOfflinePlayers(name string) ([]OfflinePlayer, error) {
	return pm.GetOfflinePlayersAsync(name).GetErr(consts.QUERY_DEFAULT_TIMEOUT)
}

// GetRegisteredPlayersAsync returns every player who ever joined, it may take long on big networks
func (pm *PlayerManager) GetRegisteredPlayersAsync() *async.Task[[]OfflinePlayer] {
	return callPlayerAPI(pm, OP_GET_ALL_REGISTERED_PLAYERS, document.New(), consts.QUERY_BULK_TIMEOUT, offlinePlayersMapper)
}

func (pm *PlayerManager) GetRegisteredPlayers() ([]OfflinePlayer, error) {
	return pm.GetRegisteredPlayersAsync().GetErr(consts.QUERY_BULK_TIMEOUT)
}

func (pm *PlayerManager) send(message string, payload document.Document) error {
	return pm.messenger.SendChannelMessageTo(pm.node.Channel(), PLAYER_CHANNEL, message, payload)
}

// UpdateOfflinePlayer stores the player record on the node
func (pm *PlayerManager) UpdateOfflinePlayer(player OfflinePlayer) error {
	return pm.send(MSG_UPDATE_OFFLINE_PLAYER, document.Of("offlineCloudPlayer", map[string]interface{}(player.ToDocument())))
}

// UpdateOnlinePlayer marks the player online on the node and updates its record
func (pm *PlayerManager) UpdateOnlinePlayer(player OnlinePlayer) error {
	return pm.send(MSG_UPDATE_ONLINE_PLAYER, document.Of("cloudPlayer", map[string]interface{}(player.ToDocument())))
}

// ProxySendPlayer asks the proxy of the player to connect it to the named service
func (pm *PlayerManager) ProxySendPlayer(uniqueId uuid.UUID, serviceName string) error {
	return pm.send(MSG_PROXY_SEND_PLAYER, document.Of("uniqueId", uniqueId.String()).Append("serviceName", serviceName))
}

func (pm *PlayerManager) ProxyKickPlayer(uniqueId uuid.UUID, kickMessage string) error {
	return pm.send(MSG_PROXY_KICK_PLAYER, document.Of("uniqueId", uniqueId.String()).Append("kickMessage", kickMessage))
}

func (pm *PlayerManager) ProxySendPlayerMessage(uniqueId uuid.UUID, message string) error {
	return pm.send(MSG_PROXY_SEND_MESSAGE, document.Of("uniqueId", uniqueId.String()).Append("message", message))
}

// BroadcastMessage sends the message to all players having the permission, or to everybody if it is empty
func (pm *PlayerManager) BroadcastMessage(message string, permission string) error {
	payload := document.Of("message", message)
	if permission != "" {
		payload.Append("permission", permission)
	}
	return pm.send(MSG_BROADCAST_MESSAGE, payload)
}

// RemoveOnlinePlayer marks the player offline on the node
func (pm *PlayerManager) RemoveOnlinePlayer(uniqueId uuid.UUID) error {
	return pm.send(MSG_REMOVE_ONLINE_PLAYER, document.Of("uniqueId", uniqueId.String()))
}
