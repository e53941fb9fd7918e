package link

import (
	"sync"
	"testing"

	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"

	"github.com/srg/nearbyhal/pkg/hal"
)

type transitions struct {
	mu     sync.Mutex
	states []hal.LinkState
}

func (r *transitions) record(_ hal.Address, s hal.LinkState) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states = append(r.states, s)
}

func newTable() (*Table, *transitions) {
	logger, _ := logtest.NewNullLogger()
	rec := &transitions{}
	return NewTable(logger, rec.record), rec
}

func TestLinkLifecycle(t *testing.T) {
	table, rec := newTable()
	peer := hal.Address(0xA1)

	assert.Equal(t, hal.LinkDisconnected, table.State(peer))
	assert.Equal(t, hal.StatusOK, table.Begin(peer))
	assert.Equal(t, hal.LinkConnecting, table.State(peer))
	assert.Equal(t, hal.StatusOK, table.Established(peer))
	assert.Equal(t, []hal.Address{peer}, table.Connected())

	assert.True(t, table.Close(peer))
	assert.False(t, table.Close(peer), "second close has nothing to tear down")
	table.Closed(peer)

	assert.Equal(t, hal.LinkDisconnected, table.State(peer))
	assert.Empty(t, table.Connected())
	assert.Equal(t, []hal.LinkState{
		hal.LinkConnecting, hal.LinkConnected, hal.LinkDisconnecting, hal.LinkDisconnected,
	}, rec.states)
}

func TestLinkRejectsDoubleConnect(t *testing.T) {
	table, _ := newTable()
	peer := hal.Address(0xB2)

	assert.Equal(t, hal.StatusOK, table.Begin(peer))
	assert.Equal(t, hal.StatusError, table.Begin(peer))
	table.Established(peer)
	assert.Equal(t, hal.StatusError, table.Begin(peer))
}

func TestLinkFailureAndUnknownPeers(t *testing.T) {
	table, rec := newTable()
	peer := hal.Address(0xC3)

	assert.False(t, table.Close(peer))
	table.Closed(peer)
	assert.Empty(t, rec.states)

	table.Begin(peer)
	table.Failed(peer)
	assert.Equal(t, hal.LinkDisconnected, table.State(peer))
	assert.Equal(t, hal.StatusOK, table.Begin(peer), "peer can reconnect after a failure")
}

func TestLinkFailureAfterLocalClose(t *testing.T) {
	table, rec := newTable()
	peer := hal.Address(0xC4)

	table.Begin(peer)
	assert.True(t, table.Close(peer))
	table.Failed(peer)

	assert.Equal(t, hal.LinkDisconnected, table.State(peer))
	assert.Equal(t, []hal.LinkState{hal.LinkConnecting, hal.LinkDisconnecting, hal.LinkDisconnected}, rec.states)
	assert.Equal(t, hal.StatusOK, table.Begin(peer))
}

func TestLinkRemoteDrop(t *testing.T) {
	table, rec := newTable()
	peer := hal.Address(0xD4)

	table.Begin(peer)
	table.Established(peer)
	table.Closed(peer)

	assert.Equal(t, hal.LinkDisconnected, table.State(peer))
	assert.Equal(t, hal.LinkDisconnected, rec.states[len(rec.states)-1])
}
