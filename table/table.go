// Package table defines the boundary of the shared key-value table that
// turbologger writes to and reads from, and provides Memory, an in-process
// implementation.
//
// A table is a set of topics addressed by path. Each topic is bound to one
// Type the first time a handle declares it; publishers push values and
// subscribers read the latest value plus the instant it last changed.
// Instants come from the table's own monotonic clock, exposed through
// Table.Now so callers can keep "last observed" markers in the same units.
//
// Calls are expected to be fast and non-blocking: implementations backed by
// a network (see package natstable) serve reads from local state and push
// writes asynchronously.
package table

// Table is the shared key-value table.
type Table interface {
	// Topic returns the topic at path, creating an undeclared one if needed.
	Topic(path string) Topic
	// Exists reports whether a topic at path has been declared.
	Exists(path string) bool
	// Now returns the current instant of the table clock. It is never less
	// than any change instant already reported by a subscriber, and every
	// change published after it returns has a greater instant.
	Now() int64
	// Remove deletes the topic at path. Open handles stop working.
	Remove(path string)
	// AddListener registers fn for every published change and returns an
	// id for RemoveListener. Listeners must not publish.
	AddListener(fn func(Change)) int
	// RemoveListener detaches a listener. Unknown ids are ignored.
	RemoveListener(id int)
}

// Topic is one addressable location in the table.
type Topic interface {
	Path() string
	// Type returns the declared type, or false if nothing declared it yet.
	Type() (Type, bool)
	// Publish declares the topic with t and returns a publisher. It fails
	// with ErrTypeMismatch if the topic is already declared differently.
	Publish(t Type) (Publisher, error)
	// Subscribe returns a subscriber that reports def until a value is
	// published. It fails with ErrTypeMismatch like Publish.
	Subscribe(t Type, def any) (Subscriber, error)
}

// Publisher pushes values to a topic.
type Publisher interface {
	Set(v any) error
	Close()
}

// Subscriber reads the latest value of a topic.
type Subscriber interface {
	Get() any
	// LastChange returns the instant of the latest published value, 0 if
	// none was published.
	LastChange() int64
	Close()
}
