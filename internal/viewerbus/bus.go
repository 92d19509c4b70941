// Package viewerbus implements the local-socket fan-out to terminal viewer
// clients: broadcasting Message telemetry and accepting inbound Commands.
// Grounded on the bridge's own daemon-socket patterns (lsp-session-manager's
// net.Listener accept loop, generalized here to a Unix domain socket with
// a bounded drop-oldest broadcast) since no component in the example pool
// ships a ready-made pub/sub primitive with those exact semantics.
package viewerbus

import (
	"bufio"
	"encoding/json"
	"net"
	"os"
	"sync"

	"github.com/google/uuid"

	"github.com/rockerboo/lean-proof-bridge/internal/errs"
	"github.com/rockerboo/lean-proof-bridge/internal/logging"
	"github.com/rockerboo/lean-proof-bridge/internal/model"
)

// broadcastCapacity bounds each subscriber's channel. A lagging viewer
// drops the oldest undelivered message rather than stalling the broadcaster
// (§4.E: every viewer message is a full snapshot, so no unrecoverable
// history is lost).
const broadcastCapacity = 16

// Bus listens on a Unix domain socket, broadcasting Messages to every
// connected viewer and routing each viewer's inbound Commands onto a single
// shared channel for the navigation translator to drain.
type Bus struct {
	socketPath string
	listener   net.Listener

	mu          sync.Mutex
	subscribers map[string]chan model.Message

	commands chan model.Command
}

// New removes any stale socket file at path and binds a new listener.
func New(socketPath string) (*Bus, error) {
	if err := os.Remove(socketPath); err != nil && !os.IsNotExist(err) {
		return nil, errs.WrapIo(err, "removing stale viewer socket")
	}

	l, err := net.Listen("unix", socketPath)
	if err != nil {
		return nil, errs.WrapIo(err, "binding viewer socket")
	}

	return &Bus{
		socketPath:  socketPath,
		listener:    l,
		subscribers: make(map[string]chan model.Message),
		commands:    make(chan model.Command, broadcastCapacity),
	}, nil
}

// Commands is the shared inbound channel every viewer connection's reader
// forwards parsed Commands onto.
func (b *Bus) Commands() <-chan model.Command {
	return b.commands
}

// Publish broadcasts msg to every connected viewer. Implements the
// Publisher interface the shadow client and interceptor fan-out into.
func (b *Bus) Publish(msg model.Message) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for id, ch := range b.subscribers {
		select {
		case ch <- msg:
		default:
			// subscriber is lagging: drop the oldest queued message and
			// retry once so the newest snapshot always has a slot.
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- msg:
			default:
				logging.Warn("viewer connection dropped a message", "connection", id)
			}
		}
	}
}

// Serve accepts viewer connections until the listener is closed.
func (b *Bus) Serve() error {
	for {
		conn, err := b.listener.Accept()
		if err != nil {
			if ne, ok := err.(net.Error); ok && !ne.Temporary() {
				return nil
			}
			return errs.WrapIo(err, "accepting viewer connection")
		}
		go b.handleConn(conn)
	}
}

func (b *Bus) handleConn(conn net.Conn) {
	id := uuid.New().String()
	logging.Info("viewer connected", "connection", id)
	defer func() {
		logging.Info("viewer disconnected", "connection", id)
		conn.Close()
	}()

	outbound := make(chan model.Message, broadcastCapacity)
	outbound <- model.NewConnectedMessage()
	b.mu.Lock()
	b.subscribers[id] = outbound
	b.mu.Unlock()
	defer func() {
		b.mu.Lock()
		delete(b.subscribers, id)
		b.mu.Unlock()
	}()

	done := make(chan struct{})
	go b.writeLoop(conn, id, outbound, done)
	b.readLoop(conn, id)
	close(done)
}

func (b *Bus) writeLoop(conn net.Conn, id string, outbound <-chan model.Message, done <-chan struct{}) {
	enc := json.NewEncoder(conn)
	for {
		select {
		case msg := <-outbound:
			if err := enc.Encode(msg); err != nil {
				logging.Warn("viewer write failed", "connection", id, "error", err.Error())
				return
			}
		case <-done:
			return
		}
	}
}

func (b *Bus) readLoop(conn net.Conn, id string) {
	scanner := bufio.NewScanner(conn)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		cmd, err := model.ParseCommand(line)
		if err != nil {
			logging.Warn("malformed viewer command ignored", "connection", id, "error", err.Error())
			continue
		}
		b.commands <- cmd
	}
}

// Close stops accepting new viewer connections.
func (b *Bus) Close() error {
	return b.listener.Close()
}
