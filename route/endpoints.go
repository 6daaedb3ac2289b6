package route

import (
	"fmt"
	"strings"
)

// Address one network address of the broker
type Address struct {
	Host string
	Port int
}

func (a Address) String() string {
	return fmt.Sprintf("%s:%d", a.Host, a.Port)
}

// Endpoints the resolved addresses of one broker, the ack/nack/forward
// requests of a received message MUST target the endpoints it was
// received from
type Endpoints struct {
	Addresses []Address
}

// NewEndpoints creates the endpoints from the given addresses
func NewEndpoints(addrs ...Address) Endpoints {
	return Endpoints{Addresses: addrs}
}

// IsEmpty returns true if no address is resolved
func (e Endpoints) IsEmpty() bool {
	return len(e.Addresses) == 0
}

func (e Endpoints) String() string {
	ss := make([]string, len(e.Addresses))
	for i, a := range e.Addresses {
		ss[i] = a.String()
	}
	return strings.Join(ss, ";")
}
