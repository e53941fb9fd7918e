package link

import (
	"hash/fnv"

	"github.com/cornelk/hashmap"

	"github.com/srg/nearbyhal/pkg/hal"
)

// Peers maps radio address strings to HAL addresses. CoreBluetooth hides
// MAC addresses behind per-host UUIDs; those get a stable 48-bit alias.
type Peers struct {
	byAddr *hashmap.Map[hal.Address, string]
}

func NewPeers() *Peers {
	return &Peers{byAddr: hashmap.New[hal.Address, string]()}
}

// Learn returns the HAL address for a radio address and remembers the pair.
func (p *Peers) Learn(raw string) hal.Address {
	addr, err := hal.ParseAddress(raw)
	if err != nil {
		h := fnv.New64a()
		h.Write([]byte(raw))
		addr = hal.Address(h.Sum64() & (1<<48 - 1))
	}
	p.byAddr.Set(addr, raw)
	return addr
}

// RadioAddr returns the radio address for peer, formatting unseen peers as a MAC.
func (p *Peers) RadioAddr(peer hal.Address) string {
	if raw, ok := p.byAddr.Get(peer); ok {
		return raw
	}
	return peer.String()
}
