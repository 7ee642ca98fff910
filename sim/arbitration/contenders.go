// Package arbitration provides the arbitrators of the cycle kernel. Processes
// request an arbitrator during Acquire, the kernel resolves the requests in
// the Arbitrate phase, and the processes learn in Check and Commit whether
// they won. There is at most one winner per arbitrator and index per cycle.
package arbitration

import "fmt"

// Policy decides which requester wins.
type Policy int

const (
	// PolicyPriority selects the requester with the lowest priority value.
	PolicyPriority Policy = iota

	// PolicyCyclic selects requesters round-robin in the order their
	// priorities were set, starting after the previous winner.
	PolicyCyclic
)

func (p Policy) String() string {
	switch p {
	case PolicyPriority:
		return "Priority"
	case PolicyCyclic:
		return "Cyclic"
	}

	return "Unknown"
}

type winner[K comparable] struct {
	key   K
	stamp uint64
}

// contenders keeps the priority table, the requests of the current cycle and
// the winners of the last arbitration. K identifies requesters and I the
// index of a request.
type contenders[K comparable, I comparable] struct {
	policy Policy

	order    []K
	position map[K]int
	priority map[K]int

	requests map[I][]K
	indices  []I

	winners map[I]winner[K]
	last    map[I]int
	won     map[K]uint64
	wins    map[K]uint64
}

func newContenders[K comparable, I comparable](
	policy Policy,
) contenders[K, I] {
	return contenders[K, I]{
		policy:   policy,
		position: make(map[K]int),
		priority: make(map[K]int),
		requests: make(map[I][]K),
		winners:  make(map[I]winner[K]),
		last:     make(map[I]int),
		won:      make(map[K]uint64),
		wins:     make(map[K]uint64),
	}
}

func (c *contenders[K, I]) setPriority(key K, priority int) error {
	if _, dup := c.priority[key]; dup {
		return fmt.Errorf("priority of %v is already set", key)
	}

	for other, p := range c.priority {
		if p == priority {
			return fmt.Errorf("priority %d of %v is already used by %v",
				priority, key, other)
		}
	}

	c.position[key] = len(c.order)
	c.order = append(c.order, key)
	c.priority[key] = priority

	return nil
}

func (c *contenders[K, I]) known(key K) bool {
	_, ok := c.priority[key]
	return ok
}

func (c *contenders[K, I]) request(key K, index I) {
	reqs, ok := c.requests[index]
	if !ok {
		c.indices = append(c.indices, index)
	}

	for _, r := range reqs {
		if r == key {
			return
		}
	}

	c.requests[index] = append(reqs, key)
}

func (c *contenders[K, I]) pending() bool {
	return len(c.indices) > 0
}

// resolve selects one winner per requested index, stamps the winners and
// clears the requests. It returns the indices that got a winner, in the
// order they were first requested.
func (c *contenders[K, I]) resolve(stamp uint64) []I {
	indices := c.indices

	for _, index := range indices {
		key := c.selectWinner(index, c.requests[index])

		c.winners[index] = winner[K]{key: key, stamp: stamp}
		c.won[key] = stamp
		c.wins[key]++

		delete(c.requests, index)
	}

	c.indices = nil

	return indices
}

func (c *contenders[K, I]) selectWinner(index I, reqs []K) K {
	if c.policy == PolicyCyclic {
		return c.selectCyclic(index, reqs)
	}

	best := reqs[0]

	for _, r := range reqs[1:] {
		if c.priority[r] < c.priority[best] {
			best = r
		}
	}

	return best
}

func (c *contenders[K, I]) selectCyclic(index I, reqs []K) K {
	n := len(c.order)

	last, ok := c.last[index]
	if !ok {
		last = n - 1
	}

	best := reqs[0]
	bestDist := n + 1

	for _, r := range reqs {
		dist := (c.position[r] - last + n) % n
		if dist == 0 {
			dist = n
		}

		if dist < bestDist {
			best, bestDist = r, dist
		}
	}

	c.last[index] = c.position[best]

	return best
}

func (c *contenders[K, I]) hasWon(key K, index I, stamp uint64) bool {
	w, ok := c.winners[index]
	return ok && w.stamp == stamp && w.key == key
}

func (c *contenders[K, I]) wonAny(key K, stamp uint64) bool {
	return c.won[key] == stamp && stamp != 0
}

func (c *contenders[K, I]) winnerOf(index I, stamp uint64) (K, bool) {
	w, ok := c.winners[index]
	if !ok || w.stamp != stamp {
		var zero K
		return zero, false
	}

	return w.key, true
}
