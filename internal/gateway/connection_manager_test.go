package gateway

import (
	"fmt"
	"sync"
	"testing"
)

// A broadcast snapshots its targets before writing to their send buffers, so
// a connection can be unregistered between the snapshot and the write. That
// write must stay safe against concurrent disconnects.
func TestBroadcastDuringUnregister(t *testing.T) {
	g, _ := newTestManager(t)

	const numConns = 50
	const numBroadcasts = 400

	conns := make([]*Connection, numConns)
	for i := range conns {
		conns[i] = &Connection{
			ID:       fmt.Sprintf("conn-%d", i),
			PlayerID: fmt.Sprintf("p%d", i),
			Send:     make(chan []byte, numBroadcasts+1),
			Manager:  g,
			done:     make(chan struct{}),
		}
		g.registerLobby(conns[i])
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		payload := []byte(`{"type":"lobby-snapshot"}`)
		for i := 0; i < numBroadcasts; i++ {
			g.handleBroadcast(broadcastMessage{lobby: true, payload: payload})
		}
	}()
	go func() {
		defer wg.Done()
		for _, conn := range conns {
			g.unregister(conn)
		}
	}()
	wg.Wait()

	for _, conn := range conns {
		select {
		case <-conn.done:
		default:
			t.Fatalf("connection %s was not signalled to shut down", conn.ID)
		}
	}
}

func TestUnregisterIdempotent(t *testing.T) {
	g, _ := newTestManager(t)
	conn := newTestConn(g, "p1", "Ada")
	g.registerLobby(conn)

	g.unregister(conn)
	g.unregister(conn)
	conn.shutdown()

	select {
	case <-conn.done:
	default:
		t.Fatal("unregister should signal shutdown")
	}
	if g.hasRoomConnection("p1") {
		t.Fatal("unregistered connection still visible in room pools")
	}
}
