// Package peers keeps the ordered list of known peer addresses used by the
// multi-hop sweep.
package peers

import "strings"

// Registry is an ordered, duplicate-free list of peer addresses.
// Addresses compare case-insensitively. It is not safe for concurrent use;
// the connection actor owns it.
type Registry struct {
	addrs []string
}

// NewRegistry creates a registry seeded with addrs.
func NewRegistry(addrs ...string) *Registry {
	r := &Registry{}
	for _, a := range addrs {
		r.Add(a)
	}
	return r
}

// Add appends addr unless it is empty or already known. It reports whether
// the registry changed.
func (r *Registry) Add(addr string) bool {
	addr = strings.TrimSpace(addr)
	if addr == "" || r.Contains(addr) {
		return false
	}
	r.addrs = append(r.addrs, addr)
	return true
}

// Replace discards the current list and adds addrs in order.
func (r *Registry) Replace(addrs []string) {
	r.Reset()
	for _, a := range addrs {
		r.Add(a)
	}
}

// Reset removes every address.
func (r *Registry) Reset() {
	r.addrs = nil
}

// Contains reports whether addr is registered.
func (r *Registry) Contains(addr string) bool {
	for _, a := range r.addrs {
		if strings.EqualFold(a, addr) {
			return true
		}
	}
	return false
}

// Len returns the number of addresses.
func (r *Registry) Len() int {
	return len(r.addrs)
}

// Snapshot returns a copy of the addresses in registration order.
func (r *Registry) Snapshot() []string {
	out := make([]string, len(r.addrs))
	copy(out, r.addrs)
	return out
}
