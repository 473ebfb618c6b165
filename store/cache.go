package store

import (
	"log"

	grenade "github.com/electronicvisions/grenade-sub004"
	"github.com/pkg/errors"
)

// Cache routes networks, reusing the last routing saved under the same
// name when it still serves the network.
//
type Cache struct {
	Store  Store
	Logger *log.Logger
}

func (c *Cache) logf(format string, args ...interface{}) {
	if c.Logger != nil {
		c.Logger.Printf("cache: "+format, args...)
	}
}

// Route returns a routing of net and saves it with net under name. The
// returned flag is true if the routing was taken from the store, with the
// weights of net applied.
//
func (c *Cache) Route(name string, net *grenade.Network, opts *grenade.RoutingOptions) (*grenade.RoutingResult, bool, error) {
	r, err := c.cached(name, net)
	if err != nil {
		return nil, false, err
	}
	hit := r != nil
	if !hit {
		if r, err = grenade.Route(net, opts); err != nil {
			return nil, false, err
		}
	}
	if err = c.Store.Save(grenade.NewSnapshot(name, net, r)); err != nil {
		return nil, false, err
	}
	return r, hit, nil
}

// cached returns the stored routing of name if it serves net, nil
// otherwise.
//
func (c *Cache) cached(name string, net *grenade.Network) (*grenade.RoutingResult, error) {
	s, err := c.Store.Load(name)
	if errors.Cause(err) == ErrNotFound {
		c.logf("%s: no snapshot", name)
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	old, r, err := s.Decode()
	if err != nil {
		return nil, err
	}
	if r == nil || grenade.RequiresRouting(net, old, r) {
		c.logf("%s: routing required", name)
		return nil, nil
	}
	if err = r.ApplyWeights(net); err != nil {
		return nil, errors.Wrapf(err, "%s", name)
	}
	c.logf("%s: reusing routing", name)
	return r, nil
}
