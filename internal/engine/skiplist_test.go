package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSkipList_PutAndGet(t *testing.T) {
	sl := newSkipList(5, 0.5)

	sl.Put(NewRecord("key1", "value1", 1))
	got, ok := sl.Get("key1")
	assert.True(t, ok, "expected to find key1")
	assert.Equal(t, "value1", got.Value())

	sl.Put(NewRecord("key1", "value2", 2))
	got, ok = sl.Get("key1")
	assert.True(t, ok)
	assert.Equal(t, "value2", got.Value())
}

func TestSkipList_GetNotFound(t *testing.T) {
	sl := newSkipList(5, 0.5)
	_, ok := sl.Get("missing")
	if ok {
		t.Errorf("expected to not find missing key")
	}
}

func TestSkipList_All(t *testing.T) {
	sl := newSkipList(5, 0.5)
	sl.Put(NewRecord("a", "1", 1))
	sl.Put(NewRecord("b", "2", 2))
	sl.Put(NewRecord("c", "3", 3))

	all := sl.All()
	if len(all) != 3 {
		t.Fatalf("expected 3 elements, got %d", len(all))
	}
	for i, k := range []string{"a", "b", "c"} {
		if all[i].Key() != k {
			t.Errorf("expected ascending order, got %s at position %d", all[i].Key(), i)
		}
	}
}

func TestSkipList_PutReportsPrevious(t *testing.T) {
	sl := newSkipList(5, 0.5)
	_, existed := sl.Put(NewRecord("a", "1", 1))
	assert.False(t, existed)

	previous, existed := sl.Put(NewRecord("a", "12345", 2))
	assert.True(t, existed)
	assert.Equal(t, "1", previous.Value())
}
