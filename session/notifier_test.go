package session

import "testing"

func TestNotifierClose(t *testing.T) {
	n := newNotifier()
	ch, unsubscribe := n.subscribe()

	n.close()
	if _, ok := <-ch; ok {
		t.Fatal("subscriber channel open after close")
	}
	// Unsubscribing after close is harmless.
	unsubscribe()
	n.close()

	late, _ := n.subscribe()
	if _, ok := <-late; ok {
		t.Fatal("subscription after close returned an open channel")
	}
	n.publish(unauthenticated())
}

func TestNotifierObserverOrder(t *testing.T) {
	n := newNotifier()
	var order []int
	n.observe(func(State) { order = append(order, 1) })
	cancel := n.observe(func(State) { order = append(order, 2) })
	n.observe(func(State) { order = append(order, 3) })

	n.publish(unauthenticated())
	cancel()
	n.publish(unauthenticated())

	want := []int{1, 2, 3, 1, 3}
	if len(order) != len(want) {
		t.Fatalf("order = %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("order = %v, want %v", order, want)
		}
	}
}

func TestNotifierDeliversClones(t *testing.T) {
	n := newNotifier()
	ch, unsubscribe := n.subscribe()
	defer unsubscribe()

	st := State{Status: StatusAuthenticated, BusinessScope: []string{"a"}}
	n.publish(st)
	got := <-ch
	got.BusinessScope[0] = "b"
	if st.BusinessScope[0] != "a" {
		t.Fatal("subscriber mutated publisher state")
	}
}
