// Command synroute routes spiking networks onto the synapse drivers of the
// chip and solves single PADI-bus allocation problems.
//
// Usage:
//
//	synroute route -in net.json [-out snapshot.json] [flags]
//	synroute padi [flags] "label=1 shapes=12" "label=2 shapes=8c,4"
//	synroute cache [-dir dir | -mongo url] [-list] [-drop] [snapshot.json ...]
//
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	grenade "github.com/electronicvisions/grenade-sub004"
	"github.com/electronicvisions/grenade-sub004/coord"
	"github.com/electronicvisions/grenade-sub004/internal/reqparse"
	"github.com/electronicvisions/grenade-sub004/padibus"
	"github.com/electronicvisions/grenade-sub004/store"
	"github.com/pkg/errors"
	"github.com/tebeka/atexit"
)

func usage() {
	fmt.Fprintf(os.Stderr, "usage: %s route|padi|cache [flags] [args]\n", os.Args[0])
}

func main() {
	log.SetFlags(0)
	if len(os.Args) < 2 {
		usage()
		atexit.Exit(2)
	}
	var err error
	switch os.Args[1] {
	case "route":
		err = routeCmd(os.Args[2:], os.Stdout)
	case "padi":
		err = padiCmd(os.Args[2:], os.Stdout)
	case "cache":
		err = cacheCmd(os.Args[2:], os.Stdout)
	default:
		usage()
		atexit.Exit(2)
	}
	if err != nil {
		log.Print(err)
		atexit.Exit(1)
	}
	atexit.Exit(0)
}

// parsePolicy returns the allocation policy name. A non-zero timeout limits
// backtracking.
//
func parsePolicy(name string, timeout time.Duration) (padibus.Policy, error) {
	switch name {
	case "greedy":
		return padibus.Greedy{ExclusiveFirst: true}, nil
	case "greedy-noexcl":
		return padibus.Greedy{}, nil
	case "backtracking":
		if timeout > 0 {
			return padibus.Limit(timeout), nil
		}
		return padibus.Backtracking{}, nil
	}
	return nil, errors.Errorf("unknown policy %q", name)
}

// parseUnavailable returns the synapse drivers listed in top and bottom,
// given as ranges of indices on the synapse driver block of each hemisphere.
//
func parseUnavailable(top, bottom string) ([]coord.SynapseDriverOnDLS, error) {
	var ds []coord.SynapseDriverOnDLS
	for h, s := range [coord.HemisphereOnDLSSize]string{top, bottom} {
		is, err := coord.ParseRange(s, coord.SynapseDriverOnSynapseDriverBlockSize)
		if err != nil {
			return nil, errors.Wrapf(err, "unavailable %v synapse drivers", coord.Hemisphere(h))
		}
		for _, i := range is {
			ds = append(ds, coord.SynapseDriverOnDLS{Hemisphere: coord.Hemisphere(h), Index: uint8(i)})
		}
	}
	return ds, nil
}

func readNetwork(name string) (*grenade.Network, error) {
	var r io.Reader = os.Stdin
	if name != "-" {
		f, err := os.Open(name)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		r = f
	}
	var doc grenade.NetworkDoc
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return nil, errors.Wrapf(err, "read %s", name)
	}
	net, err := doc.Decode()
	if err != nil {
		return nil, errors.Wrapf(err, "read %s", name)
	}
	return net, nil
}

// openCatalog returns the MongoDB store at url if set, the directory store
// at dir otherwise.
//
func openCatalog(url, db, dir string) (store.Catalog, error) {
	if url == "" {
		return &store.FileStore{Dir: dir}, nil
	}
	m, err := store.Dial(url, db, "snapshots")
	if err != nil {
		return nil, err
	}
	atexit.Register(m.Close)
	return m, nil
}

func routeCmd(args []string, w io.Writer) error {
	var (
		in, out, policy  string
		top, bottom      string
		mongo, db, cache string
		dir              string
		timeout          time.Duration
		workers          int
		verbose          bool
	)
	fs := flag.NewFlagSet("route", flag.ContinueOnError)
	fs.StringVar(&in, "in", "-", "network `file` in JSON, - for standard input")
	fs.StringVar(&out, "out", "", "write the snapshot of network and routing as JSON to `file`")
	fs.StringVar(&policy, "policy", "greedy", "allocation policy: greedy, greedy-noexcl or backtracking")
	fs.DurationVar(&timeout, "timeout", 0, "time limit of the label search per group of PADI buses")
	fs.IntVar(&workers, "workers", 1, "number of parallel synapse driver allocations")
	fs.StringVar(&top, "unavailable-top", "", "unavailable synapse drivers of the top hemisphere, e.g. 0..3,7")
	fs.StringVar(&bottom, "unavailable-bottom", "", "unavailable synapse drivers of the bottom hemisphere")
	fs.StringVar(&cache, "cache", "", "reuse and save routings under `name`")
	fs.StringVar(&mongo, "mongo", "", "MongoDB server `url` of the routing cache")
	fs.StringVar(&db, "db", "grenade", "MongoDB database of the routing cache")
	fs.StringVar(&dir, "dir", ".", "directory of the routing cache without MongoDB")
	fs.BoolVar(&verbose, "v", false, "log routing steps")
	if err := fs.Parse(args); err != nil {
		return err
	}

	opts := &grenade.RoutingOptions{Workers: workers}
	var err error
	// the label search timeout only applies to the DLS groups, backtracking
	// on single buses runs to completion
	if opts.Policy, err = parsePolicy(policy, 0); err != nil {
		return err
	}
	if timeout > 0 {
		opts.Timeout = &timeout
	}
	if opts.UnavailableSynapseDrivers, err = parseUnavailable(top, bottom); err != nil {
		return err
	}
	if verbose {
		opts.Logger = log.New(os.Stderr, "", log.Lmicroseconds)
	}

	net, err := readNetwork(in)
	if err != nil {
		return err
	}

	var (
		r      *grenade.RoutingResult
		cached bool
	)
	if cache != "" {
		c := &store.Cache{Logger: opts.Logger}
		if c.Store, err = openCatalog(mongo, db, dir); err != nil {
			return err
		}
		r, cached, err = c.Route(cache, net, opts)
	} else {
		r, err = grenade.Route(net, opts)
	}
	if err != nil {
		if errors.Cause(err) == grenade.ErrUnsuccessfulRouting {
			return errors.Wrap(err, "no routing found, try -policy backtracking or a larger -timeout")
		}
		return err
	}

	fmt.Fprintln(w, r)
	if cached {
		fmt.Fprintf(w, "routing reused from cache %q\n", cache)
	}
	if out == "" {
		return nil
	}
	b, err := json.MarshalIndent(grenade.NewSnapshot(cache, net, r), "", "\t")
	if err != nil {
		return err
	}
	return os.WriteFile(out, b, 0644)
}

func padiCmd(args []string, w io.Writer) error {
	var (
		policy, unavailable string
		verbose             bool
	)
	fs := flag.NewFlagSet("padi", flag.ContinueOnError)
	fs.StringVar(&policy, "policy", "greedy", "allocation policy: greedy, greedy-noexcl or backtracking")
	timeout := fs.Duration("timeout", 0, "time limit of backtracking")
	fs.StringVar(&unavailable, "unavailable", "", "unavailable synapse drivers of the bus, e.g. 0..3,7")
	fs.BoolVar(&verbose, "v", false, "log allocation steps")
	if err := fs.Parse(args); err != nil {
		return err
	}
	p, err := parsePolicy(policy, *timeout)
	if err != nil {
		return err
	}
	is, err := coord.ParseRange(unavailable, coord.SynapseDriverOnPADIBusSize)
	if err != nil {
		return errors.Wrap(err, "unavailable synapse drivers")
	}
	ds := make([]coord.SynapseDriver, len(is))
	for k, i := range is {
		ds[k] = coord.SynapseDriver(i)
	}
	reqs, err := reqparse.ParseAll(fs.Args())
	if err != nil {
		return err
	}

	m := padibus.NewManager(ds...)
	if verbose {
		m.Logger = log.New(os.Stderr, "", log.Lmicroseconds)
	}
	allocs, ok := m.Solve(reqs, p)
	if !ok {
		return errors.Errorf("%v found no allocation", p)
	}
	for k, a := range allocs {
		fmt.Fprintf(w, "%v: %v\n", reqs[k], a)
	}
	return nil
}

// readSnapshot reads a snapshot written by route -out. Snapshots without name
// are named after the file.
//
func readSnapshot(name string) (*grenade.Snapshot, error) {
	b, err := os.ReadFile(name)
	if err != nil {
		return nil, err
	}
	var s grenade.Snapshot
	if err = json.Unmarshal(b, &s); err != nil {
		return nil, errors.Wrapf(err, "read %s", name)
	}
	if err = s.CheckFormat(); err != nil {
		return nil, errors.Wrapf(err, "read %s", name)
	}
	if s.Name == "" {
		s.Name = strings.TrimSuffix(filepath.Base(name), filepath.Ext(name))
	}
	return &s, nil
}

func cacheCmd(args []string, w io.Writer) error {
	var (
		mongo, db, dir string
		list, drop     bool
	)
	fs := flag.NewFlagSet("cache", flag.ContinueOnError)
	fs.StringVar(&mongo, "mongo", "", "MongoDB server `url` of the routing cache")
	fs.StringVar(&db, "db", "grenade", "MongoDB database of the routing cache")
	fs.StringVar(&dir, "dir", ".", "directory of the routing cache without MongoDB")
	fs.BoolVar(&list, "list", false, "list the names of cached routings")
	fs.BoolVar(&drop, "drop", false, "remove all cached routings before importing")
	if err := fs.Parse(args); err != nil {
		return err
	}
	c, err := openCatalog(mongo, db, dir)
	if err != nil {
		return err
	}
	if drop {
		if err = c.Drop(); err != nil {
			return err
		}
	}
	snaps := make([]*grenade.Snapshot, 0, fs.NArg())
	for _, name := range fs.Args() {
		s, err := readSnapshot(name)
		if err != nil {
			return err
		}
		snaps = append(snaps, s)
	}
	if err = c.SaveAll(snaps); err != nil {
		return err
	}
	if !list {
		return nil
	}
	names, err := c.Names()
	if err != nil {
		return err
	}
	for _, n := range names {
		fmt.Fprintln(w, n)
	}
	return nil
}
