package vm

import "maps"

// Stats counts executed instructions by mnemonic.
type Stats struct {
	Executed  uint64
	Unmatched uint64
	ByName    map[string]uint64
}

func (s *Stats) record(mnemonic string, matched bool) {
	if s.ByName == nil {
		s.ByName = make(map[string]uint64)
	}

	s.Executed++
	s.ByName[mnemonic]++
	if !matched {
		s.Unmatched++
	}
}

// Stats returns a copy of the execution counters since the last Reset.
func (vm *VM) Stats() Stats {
	s := vm.stats
	s.ByName = maps.Clone(vm.stats.ByName)
	return s
}
