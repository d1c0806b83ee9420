// Package target expands host and port specifications into a lazy stream of probe targets.
//
// Targets are produced host-major, port-minor: every port of the lowest address first,
// then the next address. Addresses and ports are both ascending. A CIDR block expands
// to every address in the block, network and broadcast addresses included.
package target

import (
	"errors"
	"fmt"
	"iter"
	"net/netip"
	"strings"

	"github.com/woozymasta/mcscan/internal/models"
	"go4.org/netipx"
)

// ErrInvalidSpec reports a host or port specification that cannot be parsed.
var ErrInvalidSpec = errors.New("invalid spec")

// Enumerator yields every (host, port) pair of a specification exactly once.
// It is not safe for concurrent use; the scheduler pulls from a single goroutine.
type Enumerator struct {
	ranges []netipx.IPRange
	ports  []uint16

	addr netip.Addr
	ri   int
	pi   int
}

// New parses the host and port specifications. Host specs are a comma separated list of
// single addresses ("10.0.0.1"), CIDR blocks ("10.0.0.0/24") or inclusive ranges
// ("10.0.0.1-10.0.0.20"). Overlapping entries are merged so no target repeats.
func New(hosts, ports string) (*Enumerator, error) {
	ranges, err := ParseHosts(hosts)
	if err != nil {
		return nil, err
	}

	portList, err := ParsePorts(ports)
	if err != nil {
		return nil, err
	}

	e := &Enumerator{ranges: ranges, ports: portList}
	e.Reset()

	return e, nil
}

// ParseHosts parses a host specification into sorted, non-overlapping IPv4 ranges.
func ParseHosts(spec string) ([]netipx.IPRange, error) {
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return nil, fmt.Errorf("%w: empty host spec", ErrInvalidSpec)
	}

	var builder netipx.IPSetBuilder
	for token := range strings.SplitSeq(spec, ",") {
		token = strings.TrimSpace(token)
		if token == "" {
			return nil, fmt.Errorf("%w: empty token in host spec %q", ErrInvalidSpec, spec)
		}

		r, err := parseHostToken(token)
		if err != nil {
			return nil, err
		}
		builder.AddRange(r)
	}

	set, err := builder.IPSet()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSpec, err)
	}

	return set.Ranges(), nil
}

func parseHostToken(token string) (netipx.IPRange, error) {
	var r netipx.IPRange

	switch {
	case strings.Contains(token, "/"):
		prefix, err := netip.ParsePrefix(token)
		if err != nil {
			return r, fmt.Errorf("%w: bad CIDR %q", ErrInvalidSpec, token)
		}
		r = netipx.RangeOfPrefix(prefix.Masked())

	case strings.Contains(token, "-"):
		parsed, err := netipx.ParseIPRange(token)
		if err != nil {
			return r, fmt.Errorf("%w: bad range %q", ErrInvalidSpec, token)
		}
		r = parsed

	default:
		addr, err := netip.ParseAddr(token)
		if err != nil {
			return r, fmt.Errorf("%w: bad address %q", ErrInvalidSpec, token)
		}
		r = netipx.IPRangeFrom(addr, addr)
	}

	if !r.IsValid() {
		return r, fmt.Errorf("%w: empty range %q", ErrInvalidSpec, token)
	}
	if !r.From().Is4() || !r.To().Is4() {
		return r, fmt.Errorf("%w: only IPv4 is supported: %q", ErrInvalidSpec, token)
	}

	return r, nil
}

// Next returns the next target, or false once the enumeration is exhausted.
func (e *Enumerator) Next() (models.Target, bool) {
	for e.ri < len(e.ranges) {
		if e.pi < len(e.ports) {
			t := models.Target{Addr: e.addr, Port: e.ports[e.pi]}
			e.pi++
			return t, true
		}

		e.pi = 0
		if e.addr == e.ranges[e.ri].To() {
			e.ri++
			if e.ri < len(e.ranges) {
				e.addr = e.ranges[e.ri].From()
			}
			continue
		}
		e.addr = e.addr.Next()
	}

	return models.Target{}, false
}

// Reset rewinds the enumeration to the first target.
func (e *Enumerator) Reset() {
	e.ri, e.pi = 0, 0
	if len(e.ranges) > 0 {
		e.addr = e.ranges[0].From()
	}
}

// All returns a restartable sequence over every target, independent of Next.
func (e *Enumerator) All() iter.Seq[models.Target] {
	return func(yield func(models.Target) bool) {
		cp := &Enumerator{ranges: e.ranges, ports: e.ports}
		cp.Reset()
		for t, ok := cp.Next(); ok; t, ok = cp.Next() {
			if !yield(t) {
				return
			}
		}
	}
}

// Hosts returns the number of addresses covered by the host specification.
func (e *Enumerator) Hosts() uint64 {
	var n uint64
	for _, r := range e.ranges {
		from, to := r.From().As4(), r.To().As4()
		n += uint64(be32(to)-be32(from)) + 1
	}

	return n
}

// Ports returns the deduplicated port list.
func (e *Enumerator) Ports() []uint16 {
	return e.ports
}

// Count returns the total number of targets: hosts times ports.
func (e *Enumerator) Count() uint64 {
	return e.Hosts() * uint64(len(e.ports))
}

func be32(b [4]byte) uint32 {
	return uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])
}
