package consts

import "time"

// Replication limits
const (
	// MAX_COMPONENTS is the maximum number of behaviors of one identity, bounded by the width of the dirty mask
	MAX_COMPONENTS = 64
	// COMPONENT_LENGTH_SIZE is the size of the length prefix written before each component payload
	COMPONENT_LENGTH_SIZE = 4
)

// Tunable Options
const (
	// DEFAULT_TICK_INTERVAL is the interval between two replication ticks
	DEFAULT_TICK_INTERVAL = time.Millisecond * 50
	// DEFAULT_WARN_TICK_DURATION is the tick duration that triggers an opmon warning
	DEFAULT_WARN_TICK_DURATION = time.Millisecond * 20
	// HOST_LOOP_INTERVAL is the interval the host loop ticks goTimer
	HOST_LOOP_INTERVAL = time.Millisecond * 5
	// HOST_PACKET_QUEUE_SIZE is the max inbound message queue length of the host service
	HOST_PACKET_QUEUE_SIZE = 10000
	// WEBSOCKET_WRITE_TIMEOUT bounds a single websocket write
	WEBSOCKET_WRITE_TIMEOUT = time.Second * 5
	// SCRATCH_WRITER_INITIAL_CAP is the initial capacity of the world scratch writer
	SCRATCH_WRITER_INITIAL_CAP = 1024
	// DEFAULT_AOI_DISTANCE is the interest distance of the proximity grid of the host binary
	DEFAULT_AOI_DISTANCE = 100
	// HTTP_SHUTDOWN_TIMEOUT bounds the graceful shutdown of the http server
	HTTP_SHUTDOWN_TIMEOUT = time.Second * 5
	// OPMON_DUMP_INTERVAL is the interval opmon dumps statistics, 0 to disable
	OPMON_DUMP_INTERVAL time.Duration = 0
)

// Debug Options
const (
	// DEBUG_PACKETS prints message send/recv debug logs
	DEBUG_PACKETS = false
	// DEBUG_SERIALIZE prints delta serialization debug logs
	DEBUG_SERIALIZE = false
	// DEBUG_OBSERVERS prints observer rebuild debug logs
	DEBUG_OBSERVERS = false
	// DEBUG_AUTHORITY prints authority transfer debug logs
	DEBUG_AUTHORITY = false
	// DEBUG_SPAWN prints spawn and destroy debug logs
	DEBUG_SPAWN = false
)
