package grenade

import (
	"fmt"
	"log"
	"time"

	"github.com/electronicvisions/grenade-sub004/coord"
	"github.com/electronicvisions/grenade-sub004/padibus"
)

// RoutingOptions configures Route. The zero value routes with
// padibus.DefaultPolicy, no timeout, sequential solving and no logging.
//
type RoutingOptions struct {
	// Policy of the synapse driver allocation. Nil selects
	// padibus.DefaultPolicy.
	Policy padibus.Policy

	// Timeout limits the label exploration of each collection of
	// interdependent PADI buses. Nil means no limit.
	Timeout *time.Duration

	// Workers is the number of goroutines of the synapse driver
	// allocation.
	Workers int

	// Logger receives debug output of the router and all managers.
	Logger *log.Logger

	// UnavailableSynapseDrivers are never allocated.
	UnavailableSynapseDrivers []coord.SynapseDriverOnDLS
}

func (o *RoutingOptions) policy() padibus.Policy {
	if o == nil || o.Policy == nil {
		return padibus.DefaultPolicy
	}
	return o.Policy
}

func (o *RoutingOptions) String() string {
	timeout := "none"
	if o != nil && o.Timeout != nil {
		timeout = o.Timeout.String()
	}
	return fmt.Sprintf("RoutingOptions(policy: %v, timeout: %s)", o.policy(), timeout)
}
