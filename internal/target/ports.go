package target

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
)

// ParsePorts parses a port specification into a sorted, deduplicated list.
// Supported forms: single "25565", list "25565,25566", inclusive range "25565-25575" and any mix.
func ParsePorts(spec string) ([]uint16, error) {
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return nil, fmt.Errorf("%w: empty port spec", ErrInvalidSpec)
	}

	seen := make(map[uint16]struct{})
	for token := range strings.SplitSeq(spec, ",") {
		token = strings.TrimSpace(token)
		if token == "" {
			return nil, fmt.Errorf("%w: empty token in port spec %q", ErrInvalidSpec, spec)
		}

		lo, hi, found := strings.Cut(token, "-")
		if !found {
			hi = lo
		}

		start, err := parsePort(lo)
		if err != nil {
			return nil, err
		}
		end, err := parsePort(hi)
		if err != nil {
			return nil, err
		}
		if start > end {
			return nil, fmt.Errorf("%w: port range start greater than end: %s", ErrInvalidSpec, token)
		}

		for p := int(start); p <= int(end); p++ {
			seen[uint16(p)] = struct{}{}
		}
	}

	ports := make([]uint16, 0, len(seen))
	for p := range seen {
		ports = append(ports, p)
	}
	slices.Sort(ports)

	return ports, nil
}

func parsePort(s string) (uint16, error) {
	v, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("%w: bad port %q", ErrInvalidSpec, s)
	}
	if v < 1 || v > 65535 {
		return 0, fmt.Errorf("%w: port %d out of range 1..65535", ErrInvalidSpec, v)
	}

	return uint16(v), nil
}
