// Package wsadapter is the one concrete, network-facing GameFacade
// implementation: it drives a live game client over a JSON WebSocket
// connection, translating inbound sensory frames into signalbus.Signals
// and outbound capability calls into JSON command frames. The
// upgrader/client read-write pump shape is grounded on the gomind
// project's websocket UI transport (ui/transports/websocket/websocket.go
// in the retrieved pack); this adapter is a client of an external game
// bridge rather than an HTTP server, so only the read/write pump idiom
// carries over.
package wsadapter

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/corvidrun/corvid/pkg/gamefacade"
	"github.com/corvidrun/corvid/pkg/logger"
	"github.com/corvidrun/corvid/pkg/signalbus"
)

// frame is the wire shape for both directions: sensory updates and
// signal events inbound, capability commands outbound.
type frame struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// signalFrame carries a translated signal's kind and payload.
type signalFrame struct {
	Kind    signalbus.SignalKind `json:"kind"`
	Payload map[string]any       `json:"payload"`
}

const (
	writeWait  = 5 * time.Second
	pingPeriod = 25 * time.Second
	pongWait   = 60 * time.Second
)

// Adapter implements gamefacade.GameFacade over a single WebSocket
// connection to an external game-client bridge.
type Adapter struct {
	conn *websocket.Conn
	bus  *signalbus.Bus
	log  *logger.Logger

	writeMu sync.Mutex

	snapMu   sync.RWMutex
	snapshot gamefacade.Snapshot
}

// Dial connects to url and returns an Adapter ready to read sensory
// frames. bus may be nil if the caller has not wired a SignalBus yet;
// SetBus must be called before ReadLoop in that case — this lets a
// GameFacade be constructed before the AgentServices bus it will
// eventually publish onto, since services.New needs the bot to build
// the rest of the runtime.
func Dial(url string, bus *signalbus.Bus) (*Adapter, error) {
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		return nil, fmt.Errorf("wsadapter: dial %s: %w", url, err)
	}
	a := &Adapter{conn: conn, bus: bus, log: logger.Default()}
	return a, nil
}

// SetBus attaches (or replaces) the SignalBus inbound frames are
// translated onto. Safe to call before ReadLoop starts; not safe to
// call concurrently with it.
func (a *Adapter) SetBus(bus *signalbus.Bus) {
	a.bus = bus
}

// ReadLoop runs the inbound read pump until ctx is cancelled or the
// connection closes. It must be started in its own goroutine by the
// caller.
func (a *Adapter) ReadLoop(ctx context.Context) {
	defer a.conn.Close()
	a.conn.SetReadDeadline(time.Now().Add(pongWait))
	a.conn.SetPongHandler(func(string) error {
		return a.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	go a.pingLoop(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		var f frame
		if err := a.conn.ReadJSON(&f); err != nil {
			a.log.WarnCF("wsadapter", "read loop terminated", map[string]any{"error": err.Error()})
			return
		}
		a.handleFrame(f)
	}
}

func (a *Adapter) pingLoop(ctx context.Context) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.writeMu.Lock()
			a.conn.SetWriteDeadline(time.Now().Add(writeWait))
			err := a.conn.WriteMessage(websocket.PingMessage, nil)
			a.writeMu.Unlock()
			if err != nil {
				return
			}
		}
	}
}

func (a *Adapter) handleFrame(f frame) {
	switch f.Type {
	case "snapshot":
		var s gamefacade.Snapshot
		if err := json.Unmarshal(f.Data, &s); err != nil {
			a.log.WarnCF("wsadapter", "malformed snapshot frame", map[string]any{"error": err.Error()})
			return
		}
		a.snapMu.Lock()
		a.snapshot = s
		a.snapMu.Unlock()
	case "signal":
		var sf signalFrame
		if err := json.Unmarshal(f.Data, &sf); err != nil {
			a.log.WarnCF("wsadapter", "malformed signal frame", map[string]any{"error": err.Error()})
			return
		}
		if a.bus != nil {
			a.bus.Emit(sf.Kind, sf.Payload)
		}
	default:
		a.log.DebugCF("wsadapter", "unrecognized frame type", map[string]any{"type": f.Type})
	}
}

func (a *Adapter) sendCommand(ctx context.Context, cmdType string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("wsadapter: marshal %s command: %w", cmdType, err)
	}

	a.writeMu.Lock()
	defer a.writeMu.Unlock()
	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(writeWait)
	}
	a.conn.SetWriteDeadline(deadline)
	return a.conn.WriteJSON(frame{Type: cmdType, Data: payload})
}

// Position reports the last-known position from the cached snapshot.
func (a *Adapter) Position(ctx context.Context) (gamefacade.Vec3, error) {
	s, err := a.Snapshot(ctx)
	return s.Position, err
}

// Health reports the last-known health from the cached snapshot.
func (a *Adapter) Health(ctx context.Context) (float64, error) {
	s, err := a.Snapshot(ctx)
	return s.Health, err
}

// Inventory reports the last-known inventory from the cached snapshot.
func (a *Adapter) Inventory(ctx context.Context) (map[string]int, error) {
	s, err := a.Snapshot(ctx)
	return s.Inventory, err
}

// Snapshot returns the most recent sensory snapshot pushed by the bridge.
func (a *Adapter) Snapshot(ctx context.Context) (gamefacade.Snapshot, error) {
	a.snapMu.RLock()
	defer a.snapMu.RUnlock()
	return a.snapshot, nil
}

// Dig sends a dig command for block.
func (a *Adapter) Dig(ctx context.Context, block string) error {
	return a.sendCommand(ctx, "dig", map[string]string{"block": block})
}

// Place sends a place command for block at ref.
func (a *Adapter) Place(ctx context.Context, block string, ref gamefacade.Vec3) error {
	return a.sendCommand(ctx, "place", map[string]any{"block": block, "ref": ref})
}

// Look sends a look command.
func (a *Adapter) Look(ctx context.Context, yaw, pitch float64) error {
	return a.sendCommand(ctx, "look", map[string]float64{"yaw": yaw, "pitch": pitch})
}

// Equip sends an equip command.
func (a *Adapter) Equip(ctx context.Context, item string, slot string) error {
	return a.sendCommand(ctx, "equip", map[string]string{"item": item, "slot": slot})
}

// Chat sends a chat command.
func (a *Adapter) Chat(ctx context.Context, text string) error {
	return a.sendCommand(ctx, "chat", map[string]string{"text": text})
}

// SetControl sends a control-axis command.
func (a *Adapter) SetControl(ctx context.Context, axis string, on bool) error {
	return a.sendCommand(ctx, "set_control", map[string]any{"axis": axis, "on": on})
}

// Pathfind sends a pathfind command toward goal.
func (a *Adapter) Pathfind(ctx context.Context, goal gamefacade.Vec3) error {
	return a.sendCommand(ctx, "pathfind", map[string]any{"goal": goal})
}

// Close closes the underlying connection.
func (a *Adapter) Close() error {
	return a.conn.Close()
}
