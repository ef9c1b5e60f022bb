package logfile

import (
	"errors"
	"sort"
)

// DeleteOrphaned removes every log whose handle isValid rejects and returns
// the deleted handles in sorted order. Files outside the naming scheme are
// never touched. A failed delete does not stop the pass; all failures are
// returned joined.
//
// Callers must not create new handles while this runs: a log appended for a
// handle the predicate does not know yet would be reaped.
func (s *Store) DeleteOrphaned(isValid func(handle string) bool) ([]string, error) {
	handles, err := s.ListHandles()
	if err != nil {
		return nil, err
	}

	sorted := make([]string, 0, len(handles))
	for h := range handles {
		sorted = append(sorted, h)
	}
	sort.Strings(sorted)

	var deleted []string
	var errs []error
	for _, h := range sorted {
		if isValid(h) {
			continue
		}
		if err := s.Delete(h); err != nil {
			errs = append(errs, err)
			continue
		}
		deleted = append(deleted, h)
	}
	return deleted, errors.Join(errs...)
}
