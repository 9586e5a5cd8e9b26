package watcher

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAddressFilterReplaceIsAtomic(t *testing.T) {
	f := NewAddressFilter()
	f.Replace([]string{"addr1", "addr2"})

	assert.True(t, f.Contains("addr1"))
	assert.False(t, f.Contains("addr3"))

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = f.Contains("addr1")
		}()
	}
	f.Replace([]string{"addr3"})
	wg.Wait()

	assert.True(t, f.Contains("addr3"))
	assert.False(t, f.Contains("addr1"))
}

func TestStateMachineTransitions(t *testing.T) {
	sm := NewStateMachine()
	assert.Equal(t, StateIdle, sm.Current())
	assert.True(t, sm.Start())
	assert.Equal(t, StateSubscribing, sm.Current())
	assert.True(t, sm.SubscribedOK())
	assert.Equal(t, StateLive, sm.Current())
	assert.True(t, sm.BeginTick())
	assert.True(t, sm.EndTick())
	assert.Equal(t, StateLive, sm.Current())

	// Invalid transition: cannot Start from Live.
	assert.False(t, sm.Start())

	sm.Fatal()
	assert.Equal(t, StateClosed, sm.Current())
}
