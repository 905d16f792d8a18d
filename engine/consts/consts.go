package consts

import "time"

// Debug Options
const (
	// DEBUG_PACKETS logs every frame sent or received
	DEBUG_PACKETS = false
	// DEBUG_QUERIES logs every callable packet and its response
	DEBUG_QUERIES = false
)

// Tunable Options
const (
	// For Underlying Networking
	// BUFFERED_READ_BUFFSIZE is the read buffer size for buffered connections
	BUFFERED_READ_BUFFSIZE = 16384
	// BUFFERED_WRITE_BUFFSIZE is the write buffer size for buffered connections
	BUFFERED_WRITE_BUFFSIZE = 16384
	// CHANNEL_READ_BUFFER_SIZE is the socket read buffer size of node/wrapper channels
	CHANNEL_READ_BUFFER_SIZE = 1024 * 1024
	// CHANNEL_WRITE_BUFFER_SIZE is the socket write buffer size of node/wrapper channels
	CHANNEL_WRITE_BUFFER_SIZE = 1024 * 1024
	// CHANNEL_SET_TCP_NO_DELAY = true sets channels to TcpNoDelay
	CHANNEL_SET_TCP_NO_DELAY = true
	// CHANNEL_FLUSH_INTERVAL is the max delay of a queued frame before the send loop flushes
	CHANNEL_FLUSH_INTERVAL = time.Millisecond * 5

	// For Packets Send & Recv
	// PACKET_PAYLOAD_LEN_COMPRESS_THRESHOLD is the minimal packet payload length that should be compressed
	PACKET_PAYLOAD_LEN_COMPRESS_THRESHOLD = 1024
	// MAX_PACKET_PAYLOAD_LENGTH is the maximal payload of one frame
	MAX_PACKET_PAYLOAD_LENGTH = 32 * 1024 * 1024

	// For Query/RPC
	// QUERY_DEFAULT_TIMEOUT is the timeout of interactive queries
	QUERY_DEFAULT_TIMEOUT = time.Second * 5
	// QUERY_BULK_TIMEOUT is the timeout of bulk registry queries
	QUERY_BULK_TIMEOUT = time.Minute * 5

	// For Network Client
	// RECONNECT_INTERVAL is the wait between two connect attempts to the node
	RECONNECT_INTERVAL = time.Second
	// AUTH_TIMEOUT is how long a fresh connection may stay unauthenticated
	AUTH_TIMEOUT = time.Second * 10

	// For Service Lifecycle
	// SERVICE_STOP_GRACE_PERIOD is how long a service may take to stop before it is killed
	SERVICE_STOP_GRACE_PERIOD = time.Second * 10
	// SERVICE_HEARTBEAT_TIMEOUT is how long a running service may stay silent before it is stopped
	SERVICE_HEARTBEAT_TIMEOUT = time.Minute
	// WRAPPER_HEARTBEAT_INTERVAL is the interval of wrapper service info updates
	WRAPPER_HEARTBEAT_INTERVAL = time.Second * 3
	// WRAPPER_CONNECT_TIMEOUT is how long a wrapper waits for its node at startup
	WRAPPER_CONNECT_TIMEOUT = time.Second * 30
	// WRAPPER_PROCESS_STOP_GRACE_PERIOD must stay below SERVICE_STOP_GRACE_PERIOD
	WRAPPER_PROCESS_STOP_GRACE_PERIOD = time.Second * 8
	// NODE_TICK_INTERVAL is the tick interval of the node main loop
	NODE_TICK_INTERVAL = time.Millisecond * 10
	// NODE_HEARTBEAT_CHECK_INTERVAL is the interval of checking service heartbeats
	NODE_HEARTBEAT_CHECK_INTERVAL = time.Second * 5
	// NODE_INFO_UPDATE_INTERVAL is the interval of refreshing local node resources
	NODE_INFO_UPDATE_INTERVAL = time.Second * 10
	// NODE_TIMEOUT is how long a cluster node may stay silent before it is considered offline
	NODE_TIMEOUT = time.Second * 30
	// OPMON_DUMP_INTERVAL is the interval of dumping operation statistics to the log
	OPMON_DUMP_INTERVAL = time.Minute * 5

	// For Modules
	// MODULE_DOWNLOAD_TIMEOUT bounds one artifact download
	MODULE_DOWNLOAD_TIMEOUT = time.Minute * 5
	// INCLUSION_DOWNLOAD_TIMEOUT bounds one remote inclusion download
	INCLUSION_DOWNLOAD_TIMEOUT = time.Minute * 2

	// For Async Jobs
	// ASYNC_JOB_QUEUE_MAXLEN is the max pending jobs of one async job group
	ASYNC_JOB_QUEUE_MAXLEN = 10000
)

// Channel and operation names shared by node and wrapper
const (
	// AUTH_CHANNEL carries the first packet of every connection
	AUTH_CHANNEL = "cloudnet_auth"
	// QUERY_CHANNEL carries callable packets and their responses
	QUERY_CHANNEL = "cloudnet_query"
	// MESSENGER_CHANNEL_PREFIX prefixes messenger channel names on the wire
	MESSENGER_CHANNEL_PREFIX = "msg:"

	// INTERNAL_CHANNEL is the messenger channel of node/wrapper housekeeping messages
	INTERNAL_CHANNEL = "cloudnet_internal"
	// WRAPPER_SUB_CHANNEL is the query sub channel answered by wrappers
	WRAPPER_SUB_CHANNEL = "cloudnet_wrapper"
	// NODE_SUB_CHANNEL is the query sub channel answered by the node
	NODE_SUB_CHANNEL = "cloudnet_node"
)

// Operations of WRAPPER_SUB_CHANNEL
const (
	OP_INCLUDE_TEMPLATE          = "include_template"
	OP_GET_SERVICE_INFO_SNAPSHOT = "get_service_info_snapshot"
	OP_STOP_SERVICE              = "stop"
)

// Operations of NODE_SUB_CHANNEL
const (
	OP_GET_SERVICE_CONFIGURATION = "get_service_configuration"
	OP_GET_CLOUD_SERVICES        = "get_cloud_services"
	OP_GET_NODE_SNAPSHOTS        = "get_node_snapshots"
	OP_CREATE_SERVICE            = "create_service"
	OP_START_SERVICE             = "start_service"
	OP_STOP_CLOUD_SERVICE        = "stop_service"
	OP_DELETE_SERVICE            = "delete_service"
	OP_ADD_SERVICE_TEMPLATE      = "add_service_template"
)

// Messages of INTERNAL_CHANNEL
const (
	// MSG_SERVICE_INFO_UPDATE is broadcast by the node for every changed service snapshot
	MSG_SERVICE_INFO_UPDATE = "service_info_update"
	// MSG_UPDATE_SERVICE_INFO is the heartbeat a wrapper sends about its service
	MSG_UPDATE_SERVICE_INFO = "update_service_info"
	// MSG_NODE_SNAPSHOT is broadcast between nodes with their resource usage
	MSG_NODE_SNAPSHOT = "node_snapshot"
)

// Environment variables passed to wrapper processes
const (
	ENV_SERVICE_CONFIG = "CLOUDNET_SERVICE_CONFIG"
	ENV_NODE_ADDRESS   = "CLOUDNET_NODE_ADDRESS"
	ENV_NODE_TOKEN     = "CLOUDNET_NODE_TOKEN"
	ENV_NODE_COMPRESS  = "CLOUDNET_NODE_COMPRESS"
	// the template storages the wrapper copies included templates from
	ENV_STORAGE_DIR       = "CLOUDNET_STORAGE_DIR"
	ENV_STORAGE_MONGO     = "CLOUDNET_STORAGE_MONGO"
	ENV_STORAGE_MONGO_URL = "CLOUDNET_STORAGE_MONGO_URL"
	ENV_STORAGE_MONGO_DB  = "CLOUDNET_STORAGE_MONGO_DB"
)

// WRAPPER_DIR is the directory of wrapper files inside a service working directory
const WRAPPER_DIR = ".wrapper"

// WRAPPER_LOG_MAX_SIZE_MB is the rotation size of the wrapper and service process logs
const WRAPPER_LOG_MAX_SIZE_MB = 8
