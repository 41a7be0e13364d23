package resource

import (
	"github.com/statecraft/statecraft/pkg/transport"
	"github.com/statecraft/statecraft/pkg/transport/null"
)

// Base is embedded by every concrete resource type to supply identity and
// transport binding, so File/Package/Service/Repository/Exec never
// reimplement ID/ResourceType/BindTransport themselves.
type Base struct {
	Type      string
	Name      string
	Transport transport.Transport
}

// NewBase returns a Base with a null transport, so a resource constructed
// outside an executor fails loudly at first use instead of panicking.
func NewBase(typ, name string) Base {
	return Base{Type: typ, Name: name, Transport: null.Transport{ResourceID: typ + ":" + name}}
}

// ID returns the globally unique "type:name" identifier.
func (b *Base) ID() string { return b.Type + ":" + b.Name }

// ResourceType returns the short type tag.
func (b *Base) ResourceType() string { return b.Type }

// BindTransport attaches the transport this resource will use for every
// mutating and observing operation. Called once, at registration.
func (b *Base) BindTransport(t transport.Transport) { b.Transport = t }
