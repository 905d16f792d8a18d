// Package bridge is the player API of the network.
//
// The node keeps the online and registered players in a PlayerRegistry and answers the queries of the
// player API sub channel. Proxies and servers report players with messages on the player channel; the
// node relays the proxy messages (send, kick, message, broadcast) to every peer subscribed to it.
package bridge

const (
	// PLAYER_API_SUB_CHANNEL is the query sub channel of the player API
	PLAYER_API_SUB_CHANNEL = "cloudnet_bridge_player_api"
	// PLAYER_CHANNEL is the messenger channel of player updates and proxy messages
	PLAYER_CHANNEL = "cloudnet_bridge_player_channel"

	// MODULE_MAIN is the factory name of the bridge module
	MODULE_MAIN = "cloudnet-bridge"
)

// player API operations
const (
	OP_GET_ONLINE_COUNT                  = "get_online_count"
	OP_GET_REGISTERED_COUNT              = "get_registered_count"
	OP_GET_ONLINE_PLAYER_BY_UUID         = "get_online_players_by_uuid"
	OP_GET_ONLINE_PLAYERS_BY_NAME        = "get_online_players_by_name_as_list"
	OP_GET_ONLINE_PLAYERS_BY_ENVIRONMENT = "get_online_players_by_environment_as_list"
	OP_GET_ALL_ONLINE_PLAYERS            = "get_all_online_players_as_list"
	OP_GET_OFFLINE_PLAYER_BY_UUID        = "get_offline_player_by_uuid"
	OP_GET_OFFLINE_PLAYERS_BY_NAME       = "get_offline_player_by_name_as_list"
	OP_GET_ALL_REGISTERED_PLAYERS        = "get_all_registered_offline_players_as_list"
)

// messages of PLAYER_CHANNEL
const (
	MSG_UPDATE_OFFLINE_PLAYER = "update_offline_cloud_player"
	MSG_UPDATE_ONLINE_PLAYER  = "update_online_cloud_player"
	MSG_REMOVE_ONLINE_PLAYER  = "remove_online_cloud_player"
	MSG_PROXY_SEND_PLAYER     = "send_on_proxy_player_to_server"
	MSG_PROXY_KICK_PLAYER     = "kick_on_proxy_player_from_network"
	MSG_PROXY_SEND_MESSAGE    = "send_message_to_proxy_player"
	MSG_BROADCAST_MESSAGE     = "broadcast_message"
)

func isProxyMessage(message string) bool {
	switch message {
	case MSG_PROXY_SEND_PLAYER, MSG_PROXY_KICK_PLAYER, MSG_PROXY_SEND_MESSAGE, MSG_BROADCAST_MESSAGE:
		return true
	}
	return false
}
