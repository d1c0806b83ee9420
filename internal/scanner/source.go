package scanner

import "github.com/woozymasta/mcscan/internal/models"

// SliceSource serves a fixed list of targets in order.
type SliceSource struct {
	targets []models.Target
	next    int
}

// NewSliceSource wraps targets as a Source.
func NewSliceSource(targets []models.Target) *SliceSource {
	return &SliceSource{targets: targets}
}

// Next returns the next target of the list.
func (s *SliceSource) Next() (models.Target, bool) {
	if s.next >= len(s.targets) {
		return models.Target{}, false
	}
	t := s.targets[s.next]
	s.next++

	return t, true
}

// Len returns the total number of targets in the list.
func (s *SliceSource) Len() int {
	return len(s.targets)
}
