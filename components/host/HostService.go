package host

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/xiaonanln/go-xnsyncutil/xnsyncutil"
	timer "github.com/xiaonanln/goTimer"
	"github.com/xiaonanln/gwrepl/engine/common"
	"github.com/xiaonanln/gwrepl/engine/config"
	"github.com/xiaonanln/gwrepl/engine/consts"
	"github.com/xiaonanln/gwrepl/engine/entity"
	"github.com/xiaonanln/gwrepl/engine/gwlog"
	"github.com/xiaonanln/gwrepl/engine/gwvar"
	"github.com/xiaonanln/gwrepl/engine/netutil"
	"github.com/xiaonanln/gwrepl/engine/post"
	"github.com/xiaonanln/gwrepl/engine/proto"
)

const (
	rsNotRunning = iota
	rsRunning
	rsTerminating
	rsTerminated
)

type packetKind int

const (
	pkConnected packetKind = iota
	pkMessage
	pkDisconnected
)

type packetQueueItem struct { // inbound events from connection reader goroutines
	kind      packetKind
	transport netutil.MessageConnection
	msgtype   proto.MsgType
	payload   []byte
}

// HostService serves websocket connections and drives a World on a single logic goroutine
type HostService struct {
	// OnConnected is called on the logic goroutine after a connection is registered
	OnConnected func(conn *entity.Connection)
	// OnDisconnected is called on the logic goroutine before a connection is removed
	OnDisconnected func(conn *entity.Connection)

	world        *entity.World
	tickInterval time.Duration
	upgrader     websocket.Upgrader

	packetQueue chan packetQueueItem
	conns       map[netutil.MessageConnection]*entity.Connection
	lastConnID  common.ConnectionID

	runState   xnsyncutil.AtomicInt
	terminated *xnsyncutil.OneTimeCond
	done       chan struct{} // closed when the logic loop is terminated
}

// NewHostService creates a HostService driving world
func NewHostService(world *entity.World, cfg *config.HostConfig, tickInterval time.Duration) *HostService {
	if tickInterval <= 0 {
		tickInterval = consts.DEFAULT_TICK_INTERVAL
	}
	return &HostService{
		world:        world,
		tickInterval: tickInterval,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  cfg.ReadBufferSize,
			WriteBufferSize: cfg.WriteBufferSize,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		packetQueue: make(chan packetQueueItem, consts.HOST_PACKET_QUEUE_SIZE),
		conns:       map[netutil.MessageConnection]*entity.Connection{},
		terminated:  xnsyncutil.NewOneTimeCond(),
		done:        make(chan struct{}),
	}
}

func (hs *HostService) String() string {
	return "HostService"
}

// World returns the World driven by the HostService
func (hs *HostService) World() *entity.World {
	return hs.world
}

// IsRunning returns if the logic loop is running
func (hs *HostService) IsRunning() bool {
	return hs.runState.Load() == rsRunning
}

// ServeHTTP upgrades the request to a websocket and reads its messages until it is closed
func (hs *HostService) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !hs.IsRunning() {
		http.Error(w, "host is not running", http.StatusServiceUnavailable)
		return
	}
	ws, err := hs.upgrader.Upgrade(w, r, nil)
	if err != nil {
		gwlog.Warnf("%s: upgrade %s failed: %v", hs, r.RemoteAddr, err)
		return
	}

	transport := netutil.NewWebSocketConnection(ws)
	gwlog.Infof("%s: new connection from %s", hs, transport.RemoteAddr())
	if !hs.enqueue(packetQueueItem{kind: pkConnected, transport: transport}) {
		transport.Close()
		return
	}
	hs.serveConnection(transport)
}

// enqueue passes item to the logic goroutine, returning false if it is terminated
func (hs *HostService) enqueue(item packetQueueItem) bool {
	select {
	case hs.packetQueue <- item:
		return true
	case <-hs.done:
		return false
	}
}

func (hs *HostService) serveConnection(transport netutil.MessageConnection) {
	defer hs.enqueue(packetQueueItem{kind: pkDisconnected, transport: transport})

	for {
		msgtype, payload, err := transport.RecvMessage()
		if err != nil {
			if !netutil.IsConnectionError(err) {
				gwlog.Warnf("%s: read %s failed: %v", hs, transport.RemoteAddr(), err)
			}
			return
		}
		if !hs.enqueue(packetQueueItem{kind: pkMessage, transport: transport, msgtype: msgtype, payload: payload}) {
			transport.Close()
			return
		}
	}
}

// Run runs the logic loop until ctx is done or Terminate is called
//
// All World methods are called on the goroutine running Run.
func (hs *HostService) Run(ctx context.Context) error {
	hs.runState.Store(rsRunning)
	gwvar.IsHostRunning.Set(true)
	gwlog.Infof("%s: running, tick interval %s", hs, hs.tickInterval)

	tickTimer := timer.AddTimer(hs.tickInterval, hs.world.Tick)
	defer tickTimer.Cancel()

	ticker := time.NewTicker(consts.HOST_LOOP_INTERVAL)
	defer ticker.Stop()
	for {
		select {
		case item := <-hs.packetQueue:
			hs.handlePacketQueueItem(item)
		case <-ticker.C:
			if hs.runState.Load() == rsTerminating {
				hs.doTerminate()
				return nil
			}
			timer.Tick()
		case <-ctx.Done():
			hs.doTerminate()
			return nil
		}

		// after handling packets or firing timers, check the posted functions
		post.Tick()
	}
}

func (hs *HostService) handlePacketQueueItem(item packetQueueItem) {
	switch item.kind {
	case pkConnected:
		hs.lastConnID++
		conn, err := hs.world.AddConnection(hs.lastConnID, item.transport)
		if err != nil {
			gwlog.Errorf("%s: add connection %s failed: %v", hs, item.transport.RemoteAddr(), err)
			item.transport.Close()
			return
		}
		hs.conns[item.transport] = conn
		if hs.OnConnected != nil {
			hs.OnConnected(conn)
		}
	case pkMessage:
		conn := hs.conns[item.transport]
		if conn == nil {
			return
		}
		hs.world.HandleMessage(conn, item.msgtype, item.payload)
	case pkDisconnected:
		conn := hs.conns[item.transport]
		if conn == nil {
			return
		}
		gwlog.Infof("%s: %s disconnected", hs, conn)
		hs.removeConnection(item.transport, conn)
	}
}

func (hs *HostService) removeConnection(transport netutil.MessageConnection, conn *entity.Connection) {
	if hs.OnDisconnected != nil {
		hs.OnDisconnected(conn)
	}
	hs.world.RemoveConnection(conn)
	delete(hs.conns, transport)
	transport.Close()
}

// Terminate asks the logic loop to stop, Wait blocks until it is stopped
func (hs *HostService) Terminate() {
	if hs.runState.Load() == rsRunning {
		hs.runState.Store(rsTerminating)
	}
}

// Wait blocks until the logic loop is terminated
func (hs *HostService) Wait() {
	hs.terminated.Wait()
}

func (hs *HostService) doTerminate() {
	hs.runState.Store(rsTerminating)
	for transport, conn := range hs.conns {
		hs.removeConnection(transport, conn)
	}
	post.Tick()
	hs.world.Tick()

	hs.runState.Store(rsTerminated)
	close(hs.done)
	gwvar.IsHostRunning.Set(false)
	gwlog.Infof("%s: terminated", hs)
	hs.terminated.Signal()
}
