package alias

// markWritten marks path and every alias of it dirty. Caller holds mu.
func (s *Store) markWritten(path string) {
	s.markers[path] = 0
	for _, alias := range s.pathToAliases[path] {
		s.markers[alias] = 0
	}
}

// markRead marks name as observed now. Caller holds mu.
func (s *Store) markRead(name string) {
	s.markers[name] = s.tbl.Now()
}

// HasChanged reports whether the value behind name changed after name was
// last read. A name that was never written or read reports false, as does
// an alias whose target has no channel yet.
func (s *Store) HasChanged(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	mark, ok := s.markers[name]
	if !ok {
		return false
	}
	ch, ok := s.channels[s.resolve(name)]
	if !ok {
		return false
	}
	return ch.sub.LastChange() > mark
}
