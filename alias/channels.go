package alias

import (
	"errors"

	"github.com/c360/turbologger/table"
)

// channel is the cached pair of handles bound to one canonical path. The
// subscriber is opened with the channel; the publisher on the first write.
type channel struct {
	typ   table.Type
	topic table.Topic
	pub   table.Publisher
	sub   table.Subscriber
}

func (c *channel) close() {
	if c.pub != nil {
		c.pub.Close()
	}
	c.sub.Close()
}

// getOrCreate returns the channel of path bound to typ, opening it on first
// use. A channel, or a topic declared elsewhere, bound to another type
// yields a *TypeMismatchError and changes nothing, so a rejected read never
// marks its name. Caller holds mu.
func (s *Store) getOrCreate(name, path string, typ table.Type) (ch *channel, created bool, err error) {
	if ch, ok := s.channels[path]; ok {
		if ch.typ != typ {
			return nil, false, &TypeMismatchError{Name: name, Path: path, Requested: typ, Bound: ch.typ}
		}
		// Another writer of the same table may have declared the topic
		// after this channel was opened by a read.
		if declared, ok := ch.topic.Type(); ok && declared != typ {
			return nil, false, &TypeMismatchError{Name: name, Path: path, Requested: typ, Bound: declared}
		}
		return ch, false, nil
	}

	topic := s.tbl.Topic(s.topicPath(path))
	if declared, ok := topic.Type(); ok && declared != typ {
		return nil, false, &TypeMismatchError{Name: name, Path: path, Requested: typ, Bound: declared}
	}

	sub, err := topic.Subscribe(typ, typ.Zero())
	if err != nil {
		return nil, false, s.tableError(name, path, typ, topic, err)
	}

	ch = &channel{typ: typ, topic: topic, sub: sub}
	s.channels[path] = ch
	s.recordSizes()
	return ch, true, nil
}

// publisher opens the publisher of ch if needed. Caller holds mu.
func (s *Store) publisher(name, path string, ch *channel) (table.Publisher, error) {
	if ch.pub != nil {
		return ch.pub, nil
	}
	pub, err := ch.topic.Publish(ch.typ)
	if err != nil {
		return nil, s.tableError(name, path, ch.typ, ch.topic, err)
	}
	ch.pub = pub
	return pub, nil
}

// tableError turns a table type mismatch into a *TypeMismatchError.
func (s *Store) tableError(name, path string, typ table.Type, topic table.Topic, err error) error {
	if errors.Is(err, table.ErrTypeMismatch) {
		bound, _ := topic.Type()
		return &TypeMismatchError{Name: name, Path: path, Requested: typ, Bound: bound}
	}
	return err
}
