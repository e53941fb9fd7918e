// Package link tracks the connection state of every peer a radio backend
// talks to. Each peer has its own state machine; transitions that make no
// sense for the current state are rejected instead of corrupting it.
package link

import (
	"context"
	"errors"

	"github.com/cornelk/hashmap"
	"github.com/looplab/fsm"
	"github.com/sirupsen/logrus"

	"github.com/srg/nearbyhal/pkg/hal"
)

const (
	stateDisconnected  = "disconnected"
	stateConnecting    = "connecting"
	stateConnected     = "connected"
	stateDisconnecting = "disconnecting"

	eventConnect     = "connect"
	eventEstablished = "established"
	eventFail        = "fail"
	eventDisconnect  = "disconnect"
	eventClosed      = "closed"
)

var linkEvents = fsm.Events{
	{Name: eventConnect, Src: []string{stateDisconnected}, Dst: stateConnecting},
	{Name: eventEstablished, Src: []string{stateConnecting}, Dst: stateConnected},
	{Name: eventFail, Src: []string{stateConnecting}, Dst: stateDisconnected},
	{Name: eventDisconnect, Src: []string{stateConnecting, stateConnected}, Dst: stateDisconnecting},
	{Name: eventClosed, Src: []string{stateConnecting, stateConnected, stateDisconnecting}, Dst: stateDisconnected},
}

// Notify is called after a peer enters a new state.
type Notify func(peer hal.Address, state hal.LinkState)

// Table holds one state machine per known peer.
type Table struct {
	logger *logrus.Logger
	notify Notify
	links  *hashmap.Map[hal.Address, *fsm.FSM]
}

func NewTable(logger *logrus.Logger, notify Notify) *Table {
	if logger == nil {
		logger = logrus.New()
	}
	if notify == nil {
		notify = func(hal.Address, hal.LinkState) {}
	}
	return &Table{
		logger: logger,
		notify: notify,
		links:  hashmap.New[hal.Address, *fsm.FSM](),
	}
}

func (t *Table) machine(peer hal.Address) *fsm.FSM {
	if m, ok := t.links.Get(peer); ok {
		return m
	}
	m := fsm.NewFSM(stateDisconnected, linkEvents, fsm.Callbacks{
		"enter_state": func(_ context.Context, e *fsm.Event) {
			t.logger.WithFields(logrus.Fields{
				"peer": peer,
				"from": e.Src,
				"to":   e.Dst,
			}).Debug("Link state changed")
			t.notify(peer, toLinkState(e.Dst))
		},
	})
	actual, _ := t.links.GetOrInsert(peer, m)
	return actual
}

func (t *Table) fire(peer hal.Address, event string) hal.Status {
	err := t.machine(peer).Event(context.Background(), event)
	if err == nil {
		return hal.StatusOK
	}
	var noTransition fsm.NoTransitionError
	if errors.As(err, &noTransition) {
		return hal.StatusOK
	}
	t.logger.WithFields(logrus.Fields{"peer": peer, "event": event, "error": err}).Debug("Link transition rejected")
	return hal.StatusError
}

// Begin moves peer to connecting. It fails with StatusError while a link to
// peer is already pending or up.
func (t *Table) Begin(peer hal.Address) hal.Status {
	return t.fire(peer, eventConnect)
}

// Established marks a pending link as up.
func (t *Table) Established(peer hal.Address) hal.Status {
	return t.fire(peer, eventEstablished)
}

// Failed records that a dial for peer did not produce a link. A dial that a
// Close already started tearing down finishes as Closed would.
func (t *Table) Failed(peer hal.Address) {
	m, ok := t.links.Get(peer)
	if !ok {
		return
	}
	if m.Current() != stateConnecting {
		t.Closed(peer)
		return
	}
	t.fire(peer, eventFail)
	t.links.Del(peer)
}

// Close starts tearing down peer's link. It reports false when there was
// nothing to tear down.
func (t *Table) Close(peer hal.Address) bool {
	m, ok := t.links.Get(peer)
	if !ok || m.Current() == stateDisconnected || m.Current() == stateDisconnecting {
		return false
	}
	return t.fire(peer, eventDisconnect) == hal.StatusOK
}

// Closed records that peer's link is gone, whatever state it was in.
func (t *Table) Closed(peer hal.Address) {
	m, ok := t.links.Get(peer)
	if !ok {
		return
	}
	if m.Current() != stateDisconnected {
		t.fire(peer, eventClosed)
	}
	t.links.Del(peer)
}

// State returns the current state of peer's link.
func (t *Table) State(peer hal.Address) hal.LinkState {
	m, ok := t.links.Get(peer)
	if !ok {
		return hal.LinkDisconnected
	}
	return toLinkState(m.Current())
}

// Connected lists peers whose link is up.
func (t *Table) Connected() []hal.Address {
	var peers []hal.Address
	t.links.Range(func(peer hal.Address, m *fsm.FSM) bool {
		if m.Current() == stateConnected {
			peers = append(peers, peer)
		}
		return true
	})
	return peers
}

func toLinkState(s string) hal.LinkState {
	switch s {
	case stateConnecting:
		return hal.LinkConnecting
	case stateConnected:
		return hal.LinkConnected
	case stateDisconnecting:
		return hal.LinkDisconnecting
	default:
		return hal.LinkDisconnected
	}
}
