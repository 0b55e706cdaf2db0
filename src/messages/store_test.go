package messages

import (
	"fmt"
	"io/ioutil"
	"os"
	"reflect"
	"sync"
	"testing"

	"github.com/pretzelio/pretzel/src/common"
	"github.com/pretzelio/pretzel/src/graph"
)

const testPartitions = 4

func testResolver(vertexID graph.VertexID) graph.PartitionID {
	return graph.PartitionID(common.Hash32([]byte(vertexID)) % testPartitions)
}

func testMessages() []graph.Message {
	msgs := []graph.Message{}
	for i := 0; i < 10; i++ {
		msgs = append(msgs, graph.Message{
			To:      graph.VertexID(fmt.Sprintf("v%d", i%5)),
			Payload: []byte(fmt.Sprintf("payload%d", i)),
		})
	}
	return msgs
}

func checkStore(t *testing.T, store Store) {
	t.Helper()

	msgs := testMessages()

	if err := store.AddMessages(msgs); err != nil {
		t.Fatalf("err: %v", err)
	}

	if c := store.Count(); c != len(msgs) {
		t.Fatalf("Count should be %d, not %d", len(msgs), c)
	}

	// each of v0..v4 should have received exactly 2 messages, in order
	for i := 0; i < 5; i++ {
		vertexID := graph.VertexID(fmt.Sprintf("v%d", i))

		got, err := store.Messages(vertexID)
		if err != nil {
			t.Fatalf("err: %v", err)
		}

		want := []graph.Message{}
		for _, m := range msgs {
			if m.To == vertexID {
				want = append(want, m)
			}
		}

		if !reflect.DeepEqual(got, want) {
			t.Fatalf("Messages(%s) should be %v, not %v", vertexID, want, got)
		}
	}

	// vertices should be listed under the partition the resolver assigns
	partitions, err := store.Partitions()
	if err != nil {
		t.Fatalf("err: %v", err)
	}

	listed := map[graph.VertexID]graph.PartitionID{}
	for _, pid := range partitions {
		ids, err := store.VertexIDs(pid)
		if err != nil {
			t.Fatalf("err: %v", err)
		}
		for _, id := range ids {
			listed[id] = pid
		}
	}

	if len(listed) != 5 {
		t.Fatalf("stores should list 5 vertices, not %d", len(listed))
	}

	for id, pid := range listed {
		if want := testResolver(id); pid != want {
			t.Fatalf("vertex %s listed in partition %d, want %d", id, pid, want)
		}
	}

	// clearing one partition should leave the others alone
	victim := partitions[0]
	victimIDs, _ := store.VertexIDs(victim)

	if err := store.ClearPartition(victim); err != nil {
		t.Fatalf("err: %v", err)
	}

	for _, id := range victimIDs {
		got, err := store.Messages(id)
		if err != nil {
			t.Fatalf("err: %v", err)
		}
		if len(got) != 0 {
			t.Fatalf("Messages(%s) should be empty after ClearPartition, got %v", id, got)
		}
	}

	remaining, err := store.Partitions()
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	if len(remaining) != len(partitions)-1 {
		t.Fatalf("store should list %d partitions after ClearPartition, not %d",
			len(partitions)-1, len(remaining))
	}

	// ClearAll should empty the store
	if err := store.ClearAll(); err != nil {
		t.Fatalf("err: %v", err)
	}

	if c := store.Count(); c != 0 {
		t.Fatalf("Count should be 0 after ClearAll, not %d", c)
	}

	empty, err := store.Partitions()
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	if len(empty) != 0 {
		t.Fatalf("Partitions should be empty after ClearAll, got %v", empty)
	}
}

func TestInmemStore(t *testing.T) {
	store := NewInmemStore(testResolver)
	checkStore(t, store)
}

func TestDiskSpillStore(t *testing.T) {
	dir, err := ioutil.TempDir("", "pretzel")
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	defer os.RemoveAll(dir)

	factory, err := NewDiskStoreFactory(dir, testResolver)
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	defer factory.Close()

	store, err := factory.NewStore()
	if err != nil {
		t.Fatalf("err: %v", err)
	}

	checkStore(t, store)
}

func TestInmemStoreConcurrentAdd(t *testing.T) {
	store := NewInmemStore(testResolver)

	n := 20
	wg := sync.WaitGroup{}
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			store.AddMessages([]graph.Message{
				{To: "shared", Payload: []byte(fmt.Sprintf("m%d", i))},
			})
		}(i)
	}
	wg.Wait()

	got, err := store.Messages("shared")
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	if len(got) != n {
		t.Fatalf("store should hold %d messages, not %d", n, len(got))
	}
}

func TestDiskStoreGenerations(t *testing.T) {
	dir, err := ioutil.TempDir("", "pretzel")
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	defer os.RemoveAll(dir)

	factory, err := NewDiskStoreFactory(dir, testResolver)
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	defer factory.Close()

	store1, _ := factory.NewStore()
	store2, _ := factory.NewStore()

	if err := store1.AddMessages([]graph.Message{
		{To: "v1", Payload: []byte("one")},
	}); err != nil {
		t.Fatalf("err: %v", err)
	}

	// store2 must not see store1's messages
	got, err := store2.Messages("v1")
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("store2 should be empty, got %v", got)
	}

	if err := store2.AddMessages([]graph.Message{
		{To: "v1", Payload: []byte("two")},
	}); err != nil {
		t.Fatalf("err: %v", err)
	}

	// clearing store2 must not touch store1
	if err := store2.ClearAll(); err != nil {
		t.Fatalf("err: %v", err)
	}

	got, err = store1.Messages("v1")
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	if len(got) != 1 || string(got[0].Payload) != "one" {
		t.Fatalf("store1 should still hold its message, got %v", got)
	}
}
