package alias

import (
	"fmt"
	"slices"
)

// Resolve returns the canonical path for name. Names that are not
// registered aliases are returned unchanged.
func (s *Store) Resolve(name string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.resolve(name)
}

// resolve is Resolve without locking. Caller holds mu.
func (s *Store) resolve(name string) string {
	if path, ok := s.aliasToPath[name]; ok {
		return path
	}
	return name
}

// RegisterAlias makes alias another name for path. If path is itself an
// alias, the new alias points at its canonical path.
//
// It fails with ErrAliasCollision if alias is empty, equals path, is
// already registered (to any path), or names a topic already present in
// the table. A new alias starts with the staleness mark of its target.
func (s *Store) RegisterAlias(path, alias string) error {
	s.mu.Lock()
	err := s.registerAlias(path, alias)
	s.mu.Unlock()

	if err != nil {
		s.emit(warnDiag(alias, path, err))
	}
	return err
}

// registerAlias does the work of RegisterAlias. Caller holds mu.
func (s *Store) registerAlias(path, alias string) error {
	path = s.resolve(path)

	switch {
	case alias == "":
		return fmt.Errorf("%w: empty alias for %q", ErrAliasCollision, path)
	case alias == path:
		return fmt.Errorf("%w: alias %q equals its path", ErrAliasCollision, alias)
	}
	if target, ok := s.aliasToPath[alias]; ok {
		return fmt.Errorf("%w: %q is already an alias of %q", ErrAliasCollision, alias, target)
	}
	if _, ok := s.channels[alias]; ok || len(s.pathToAliases[alias]) > 0 || s.tbl.Exists(s.topicPath(alias)) {
		return fmt.Errorf("%w: %q is an existing path", ErrAliasCollision, alias)
	}

	s.aliasToPath[alias] = path
	s.pathToAliases[path] = append(s.pathToAliases[path], alias)
	s.markers[alias] = s.markers[path]
	s.recordSizes()

	s.logger.Debug("Registered alias", "path", path, "alias", alias)
	return nil
}

// RemoveAlias unregisters alias and drops its staleness mark. Unknown names
// are ignored. The canonical path and its other aliases are not affected.
func (s *Store) RemoveAlias(alias string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	path, ok := s.aliasToPath[alias]
	if !ok {
		return
	}
	delete(s.aliasToPath, alias)
	delete(s.markers, alias)

	aliases := slices.DeleteFunc(s.pathToAliases[path], func(a string) bool { return a == alias })
	if len(aliases) == 0 {
		delete(s.pathToAliases, path)
	} else {
		s.pathToAliases[path] = aliases
	}
	s.recordSizes()

	s.logger.Debug("Removed alias", "path", path, "alias", alias)
}

// RemoveCanonicalPath closes the channel of path, removes the topic from
// the table, and deletes every alias of path along with all their marks.
// Given an alias it changes nothing and reports ErrNotCanonical; use Remove
// or RemoveAlias for names.
func (s *Store) RemoveCanonicalPath(path string) {
	s.mu.Lock()
	if target, ok := s.aliasToPath[path]; ok {
		s.mu.Unlock()
		s.emit(warnDiag(path, target, fmt.Errorf("%w: %q is an alias of %q", ErrNotCanonical, path, target)))
		return
	}
	s.removePath(path)
	s.mu.Unlock()
}

// Remove is RemoveCanonicalPath for name's canonical path, so removing an
// alias removes its target and all sibling aliases.
func (s *Store) Remove(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.removePath(s.resolve(name))
}

// removePath does the work of RemoveCanonicalPath. Caller holds mu.
func (s *Store) removePath(path string) {
	if ch, ok := s.channels[path]; ok {
		ch.close()
		delete(s.channels, path)
	}
	s.tbl.Remove(s.topicPath(path))

	delete(s.markers, path)
	for _, alias := range s.pathToAliases[path] {
		delete(s.aliasToPath, alias)
		delete(s.markers, alias)
	}
	delete(s.pathToAliases, path)
	s.recordSizes()

	s.logger.Debug("Removed path", "path", path)
}

// Aliases returns the aliases of path in registration order.
func (s *Store) Aliases(path string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.pathToAliases[s.resolve(path)])
}

// IsAlias reports whether name is a registered alias.
func (s *Store) IsAlias(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.aliasToPath[name]
	return ok
}
