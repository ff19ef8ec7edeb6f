package main

import (
	"sort"
	"testing"
)

func TestStoreGetSet(t *testing.T) {
	s := NewStore()

	if _, err := s.Get("missing"); err == nil {
		t.Fatal("expect error for missing key")
	}

	if err := s.Set("a", 1); err != nil {
		t.Fatal(err)
	}
	v, err := s.Get("a")
	if err != nil {
		t.Fatal(err)
	}
	if v != 1 {
		t.Fatalf("Get(a) = %v, want 1", v)
	}
}

func TestStoreDelete(t *testing.T) {
	s := NewStore()
	s.Set("a", 1)

	if err := s.Delete("a"); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Get("a"); err == nil {
		t.Fatal("expect error after delete")
	}
	if err := s.Delete("a"); err == nil {
		t.Fatal("expect error deleting missing key")
	}
}

func TestStoreKeys(t *testing.T) {
	s := NewStore()
	s.Set("b", 2)
	s.Set("a", 1)

	keys := s.Keys()
	sort.Strings(keys)
	if len(keys) != 2 || keys[0] != "a" || keys[1] != "b" {
		t.Fatalf("Keys() = %v", keys)
	}
}

func TestStoreWatch(t *testing.T) {
	s := NewStore()

	if err := s.Watch(nil); err == nil {
		t.Fatal("expect error for nil callback")
	}

	type event struct {
		key   string
		value any
	}
	var events []event
	s.Watch(func(key string, value any) {
		events = append(events, event{key, value})
	})

	s.Set("a", 1)
	s.Set("a", 2)

	if len(events) != 2 {
		t.Fatalf("watcher fired %d times, want 2", len(events))
	}
	if events[1].key != "a" || events[1].value != 2 {
		t.Fatalf("last event = %+v", events[1])
	}
}
