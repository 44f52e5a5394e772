package meter

import (
	"fmt"
	"sync"

	"github.com/itohio/pulsemeter/pkg/pcnt"
)

type resourceKind uint8

const (
	kindChannel resourceKind = iota
	kindPin
)

type resource struct {
	kind resourceKind
	id   uint8
}

func channelResource(ch pcnt.Channel) resource { return resource{kindChannel, uint8(ch)} }
func pinResource(p pcnt.Pin) resource          { return resource{kindPin, uint8(p)} }

func (r resource) String() string {
	if r.kind == kindChannel {
		return pcnt.Channel(r.id).String()
	}
	return pcnt.Pin(r.id).String()
}

// registry tracks which meter owns which channel and pin in this process.
type registry struct {
	mu     sync.Mutex
	nextID uint64
	owners map[resource]uint64
}

// claims is shared by every meter in the process.
var claims = newRegistry()

func newRegistry() *registry {
	return &registry{owners: make(map[resource]uint64)}
}

// claim records all resources for a new owner, or none of them.
func (r *registry) claim(res []resource) (uint64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, x := range res {
		if _, taken := r.owners[x]; taken {
			if x.kind == kindChannel {
				return 0, fmt.Errorf("%w: %s", ErrChannelInUse, x)
			}
			return 0, fmt.Errorf("%w: %s", ErrPinInUse, x)
		}
	}

	r.nextID++
	owner := r.nextID
	for _, x := range res {
		r.owners[x] = owner
	}
	return owner, nil
}

// release drops every claim held by owner.
func (r *registry) release(owner uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for x, o := range r.owners {
		if o == owner {
			delete(r.owners, x)
		}
	}
}

// held returns the number of resources claimed by owner.
func (r *registry) held(owner uint64) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	for _, o := range r.owners {
		if o == owner {
			n++
		}
	}
	return n
}
