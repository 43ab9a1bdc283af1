package wire

import "fmt"

// KindSize is the fixed width of a message's kind tag. The job protocol
// (pkg/stategraph) pads every kind to this width and Register rejects any
// other length; on the wire the tag is still written as a uint32
// length-prefixed string.
const KindSize = 8

// Message is a polymorphic wire payload: a stable kind tag plus the ability
// to serialize and deserialize its own body. Concrete message types never
// encode their own kind tag or overall frame size — Channel owns the frame
// envelope.
type Message interface {
	Kind() string
	WriteTo(e *Encoder)
	ReadFrom(d *Decoder) error
}

// Registry maps kind tags to zero-value factories, standing in for the
// runtime type identification a C++ implementation would get from a class
// hierarchy plus a constructor map.
type Registry struct {
	factories map[string]func() Message
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]func() Message)}
}

// Register associates a kind tag with a factory that produces a fresh,
// zero-value Message of that kind. Registering the same kind twice is a
// contract violation — it almost always means two message types collided
// on a tag.
func (r *Registry) Register(kind string, factory func() Message) {
	if len(kind) != KindSize {
		panic(fmt.Sprintf("wire: kind tag %q must be exactly %d bytes", kind, KindSize))
	}
	if _, exists := r.factories[kind]; exists {
		panic(fmt.Sprintf("wire: kind %q already registered", kind))
	}
	r.factories[kind] = factory
}

// New constructs a fresh zero-value Message for the given kind tag. The
// second return is false if no type was registered under that tag — the
// caller maps that to ErrMalformed, since any conforming peer sends only
// kinds both ends agreed on at build time.
func (r *Registry) New(kind string) (Message, bool) {
	factory, ok := r.factories[kind]
	if !ok {
		return nil, false
	}
	return factory(), true
}
