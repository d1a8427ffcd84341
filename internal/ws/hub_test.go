package ws

import (
	"encoding/json"
	"sync"
	"testing"
	"time"
)

func TestNewHub(t *testing.T) {
	hub := NewHub()
	if hub == nil {
		t.Fatal("NewHub() returned nil")
	}
	if hub.rooms == nil {
		t.Error("NewHub() rooms map is nil")
	}
}

func TestHub_Online_EmptyRoom(t *testing.T) {
	hub := NewHub()
	if online := hub.Online("abc"); online != 0 {
		t.Errorf("Online() for empty room = %d, want 0", online)
	}
}

func TestRoomHub_Register(t *testing.T) {
	rh := NewRoomHub("abc")
	client := &Client{send: make(chan []byte, 256)}

	go rh.run()
	rh.register <- client
	time.Sleep(10 * time.Millisecond)

	if rh.Online() != 1 {
		t.Errorf("Online() after register = %d, want 1", rh.Online())
	}
}

func TestRoomHub_Unregister(t *testing.T) {
	rh := NewRoomHub("abc")
	client := &Client{send: make(chan []byte, 256)}

	go rh.run()
	rh.register <- client
	time.Sleep(10 * time.Millisecond)
	rh.unregister <- client
	time.Sleep(10 * time.Millisecond)

	if rh.Online() != 0 {
		t.Errorf("Online() after unregister = %d, want 0", rh.Online())
	}
}

func TestRoomHub_Broadcast(t *testing.T) {
	rh := NewRoomHub("abc")

	clients := make([]*Client, 3)
	for i := range clients {
		clients[i] = &Client{send: make(chan []byte, 256)}
	}

	go rh.run()
	for _, c := range clients {
		rh.register <- c
	}
	time.Sleep(20 * time.Millisecond)

	testMsg := []byte(`{"type":"message","content":"hello"}`)
	rh.broadcast <- testMsg

	var wg sync.WaitGroup
	received := make([]bool, len(clients))
	for i, c := range clients {
		wg.Add(1)
		go func(idx int, client *Client) {
			defer wg.Done()
			select {
			case msg := <-client.send:
				if string(msg) == string(testMsg) {
					received[idx] = true
				}
			case <-time.After(100 * time.Millisecond):
			}
		}(i, c)
	}
	wg.Wait()

	for i, r := range received {
		if !r {
			t.Errorf("Client %d did not receive broadcast message", i)
		}
	}
}

func TestRoomHub_EvictedClient_SendIsSafe(t *testing.T) {
	rh := NewRoomHub("abc")
	go rh.run()

	client := &Client{send: make(chan []byte, 1)}
	rh.register <- client
	time.Sleep(10 * time.Millisecond)

	// fill the one-slot buffer, then broadcast again so the run loop evicts
	rh.broadcast <- []byte(`{"type":"message","content":"a"}`)
	rh.broadcast <- []byte(`{"type":"message","content":"b"}`)
	deadline := time.Now().Add(time.Second)
	for rh.Online() != 0 {
		if time.Now().After(deadline) {
			t.Fatal("slow client was not evicted")
		}
		time.Sleep(5 * time.Millisecond)
	}

	// a direct send after eviction must be a silent drop, not a panic
	client.sendEvent(NewErrorEvent("invalid_input", "late event"))
	if client.trySend([]byte("x")) {
		t.Error("trySend() after eviction = true, want false")
	}
}

func TestHub_Publish_Ordering(t *testing.T) {
	hub := NewHub()
	client := &Client{send: make(chan []byte, 256)}

	rh := hub.GetRoom("ord")
	rh.register <- client
	time.Sleep(10 * time.Millisecond)

	// events published in sequence from one goroutine arrive in order
	for i := 0; i < 5; i++ {
		hub.Publish("ord", MessageEvent{Type: EvMessage, Room: "ord", Kind: "text", Content: string(rune('a' + i))})
	}

	for i := 0; i < 5; i++ {
		select {
		case b := <-client.send:
			var ev MessageEvent
			if err := json.Unmarshal(b, &ev); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			if want := string(rune('a' + i)); ev.Content != want {
				t.Fatalf("event %d content = %q, want %q", i, ev.Content, want)
			}
		case <-time.After(time.Second):
			t.Fatalf("timed out waiting for event %d", i)
		}
	}
}

func TestHub_MultipleRooms(t *testing.T) {
	hub := NewHub()

	rh1 := hub.GetRoom("r1")
	rh2 := hub.GetRoom("r2")
	c1 := &Client{send: make(chan []byte, 256)}
	c2 := &Client{send: make(chan []byte, 256)}

	rh1.register <- c1
	rh2.register <- c2
	time.Sleep(20 * time.Millisecond)

	if hub.Online("r1") != 1 {
		t.Errorf("Online(r1) = %d, want 1", hub.Online("r1"))
	}
	if hub.Online("r2") != 1 {
		t.Errorf("Online(r2) = %d, want 1", hub.Online("r2"))
	}

	// publishing to r1 must not reach r2
	hub.Publish("r1", NewMembershipEvent("r1", []string{"a"}))
	time.Sleep(20 * time.Millisecond)
	select {
	case b := <-c2.send:
		t.Errorf("room r2 client received cross-room event: %s", b)
	default:
	}
}

func TestRoomHub_Concurrent(t *testing.T) {
	rh := NewRoomHub("abc")
	go rh.run()

	var wg sync.WaitGroup
	numClients := 10
	for i := 0; i < numClients; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rh.register <- &Client{send: make(chan []byte, 256)}
		}()
	}
	wg.Wait()
	time.Sleep(50 * time.Millisecond)

	if rh.Online() != numClients {
		t.Errorf("Online() after concurrent register = %d, want %d", rh.Online(), numClients)
	}
}
