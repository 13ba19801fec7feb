package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestChangeQueue(t *testing.T) {
	q := newChangeQueue()

	assert.True(t, q.Enqueue(Change{Seq: 1, Entity: "Item"}))
	assert.True(t, q.Enqueue(Change{Seq: 2, Entity: "Item"}))
	assert.Equal(t, 2, q.Len())

	select {
	case <-q.Wait():
	default:
		t.Fatal("expected a pending signal")
	}

	drained := q.Drain()
	assert.Equal(t, []int64{1, 2}, []int64{drained[0].Seq, drained[1].Seq})
	assert.Nil(t, q.Drain())

	q.Close()
	q.Close()
	assert.False(t, q.Enqueue(Change{Seq: 3}))

	_, ok := <-q.Wait()
	assert.False(t, ok)
}
