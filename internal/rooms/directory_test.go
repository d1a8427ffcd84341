package rooms

import (
	"fmt"
	"sync"
	"testing"
)

func TestDirectory_JoinLeave(t *testing.T) {
	d := NewDirectory()
	c1, c2 := new(int), new(int)

	res, err := d.Join("abc", "alice", c1, true)
	if err != nil {
		t.Fatalf("Join() error = %v", err)
	}
	if got := res.Active; len(got) != 1 || got[0] != "alice" {
		t.Errorf("Join() active = %v, want [alice]", got)
	}
	if got := res.Past; len(got) != 1 || got[0] != "alice" {
		t.Errorf("Join() past = %v, want [alice]", got)
	}
	if !res.Persist {
		t.Error("Join() persist = false, want true (first join sets the flag)")
	}

	res, err = d.Join("abc", "bob", c2, false)
	if err != nil {
		t.Fatalf("Join() error = %v", err)
	}
	if got := res.Active; len(got) != 2 || got[0] != "alice" || got[1] != "bob" {
		t.Errorf("Join() active = %v, want [alice bob] in join order", got)
	}
	if !res.Persist {
		t.Error("Join() persist = false, want true (later joins must not change the flag)")
	}

	lv, ok := d.Leave(c1)
	if !ok {
		t.Fatal("Leave() ok = false, want true")
	}
	if lv.Room != "abc" || lv.Nickname != "alice" {
		t.Errorf("Leave() = %q/%q, want abc/alice", lv.Room, lv.Nickname)
	}
	if got := lv.Active; len(got) != 1 || got[0] != "bob" {
		t.Errorf("Leave() active = %v, want [bob]", got)
	}
}

func TestDirectory_LeaveUnknownConn(t *testing.T) {
	d := NewDirectory()
	if _, ok := d.Leave(new(int)); ok {
		t.Error("Leave() for unknown connection ok = true, want false (no-op)")
	}
}

func TestDirectory_DoubleLeave(t *testing.T) {
	d := NewDirectory()
	c := new(int)
	if _, err := d.Join("r", "nick", c, false); err != nil {
		t.Fatalf("Join() error = %v", err)
	}
	if _, ok := d.Leave(c); !ok {
		t.Fatal("first Leave() ok = false, want true")
	}
	if _, ok := d.Leave(c); ok {
		t.Error("second Leave() ok = true, want false")
	}
}

func TestDirectory_RejoinSameConnection(t *testing.T) {
	d := NewDirectory()
	c := new(int)
	if _, err := d.Join("r1", "nick", c, false); err != nil {
		t.Fatalf("Join() error = %v", err)
	}
	if _, err := d.Join("r2", "nick", c, false); err != ErrAlreadyJoined {
		t.Errorf("second Join() error = %v, want ErrAlreadyJoined", err)
	}
}

func TestDirectory_PastMembersDeduped(t *testing.T) {
	d := NewDirectory()

	// alice joins, leaves, rejoins; past view keeps first-seen order without duplicates
	c1 := new(int)
	d.Join("r", "alice", c1, false)
	d.Leave(c1)
	c2 := new(int)
	d.Join("r", "bob", c2, false)
	c3 := new(int)
	d.Join("r", "alice", c3, false)

	past := d.Past("r")
	if len(past) != 2 || past[0] != "alice" || past[1] != "bob" {
		t.Errorf("Past() = %v, want [alice bob]", past)
	}
	active := d.Active("r")
	if len(active) != 2 || active[0] != "bob" || active[1] != "alice" {
		t.Errorf("Active() = %v, want [bob alice] in join order", active)
	}
}

func TestDirectory_SeedPast(t *testing.T) {
	d := NewDirectory()
	d.SeedPast("r", []string{"old1", "old2"})

	c := new(int)
	res, err := d.Join("r", "new", c, false)
	if err != nil {
		t.Fatalf("Join() error = %v", err)
	}
	want := []string{"old1", "old2", "new"}
	if len(res.Past) != len(want) {
		t.Fatalf("Past = %v, want %v", res.Past, want)
	}
	for i := range want {
		if res.Past[i] != want[i] {
			t.Errorf("Past[%d] = %q, want %q", i, res.Past[i], want[i])
		}
	}

	// seeding again must not overwrite an existing log
	d.SeedPast("r", []string{"ignored"})
	if past := d.Past("r"); len(past) != 3 {
		t.Errorf("Past() after reseed = %v, want unchanged", past)
	}
}

func TestDirectory_EmptyRoomSnapshots(t *testing.T) {
	d := NewDirectory()
	if got := d.Active("none"); got != nil {
		t.Errorf("Active() for unknown room = %v, want nil", got)
	}
	if got := d.Past("none"); got != nil {
		t.Errorf("Past() for unknown room = %v, want nil", got)
	}
}

func TestDirectory_ConcurrentJoinLeave(t *testing.T) {
	d := NewDirectory()
	const n = 50

	var wg sync.WaitGroup
	conns := make([]*int, n)
	for i := 0; i < n; i++ {
		conns[i] = new(int)
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if _, err := d.Join("r", fmt.Sprintf("user%d", i), conns[i], false); err != nil {
				t.Errorf("Join() error = %v", err)
			}
		}(i)
	}
	wg.Wait()

	if got := len(d.Active("r")); got != n {
		t.Errorf("Active() after concurrent joins = %d, want %d", got, n)
	}

	// half of them leave concurrently
	for i := 0; i < n/2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if _, ok := d.Leave(conns[i]); !ok {
				t.Errorf("Leave() ok = false for conn %d", i)
			}
		}(i)
	}
	wg.Wait()

	if got := len(d.Active("r")); got != n/2 {
		t.Errorf("Active() after concurrent leaves = %d, want %d", got, n/2)
	}
	if got := len(d.Past("r")); got != n {
		t.Errorf("Past() = %d distinct nicknames, want %d", got, n)
	}
}
