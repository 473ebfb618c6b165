// Copyright 2018 Denis Bernard <db047h@gmail.com>
// Licensed under the MIT license. See license text in the LICENSE file.

// Package routetest provides utility functions for testing synapse driver
// allocation policies.
//
package routetest

import (
	"fmt"
	"math/rand"
	"strings"
	"testing"
	"time"

	"github.com/electronicvisions/grenade-sub004/coord"
	"github.com/electronicvisions/grenade-sub004/padibus"
)

// RandomRequests returns between 1 and n requests with distinct labels and a
// single shape of at most maxSize drivers each.
//
func RandomRequests(rng *rand.Rand, n, maxSize int) []padibus.AllocationRequest {
	n = 1 + rng.Intn(n)
	labels := rng.Perm(coord.LabelSize)
	reqs := make([]padibus.AllocationRequest, n)
	for i := range reqs {
		reqs[i] = padibus.AllocationRequest{
			Shapes: []padibus.Shape{{Size: rng.Intn(maxSize + 1), Contiguous: rng.Intn(2) == 0}},
			Label:  coord.Label(labels[i]),
		}
	}
	return reqs
}

func reqString(reqs []padibus.AllocationRequest, unavailable []coord.SynapseDriver) string {
	var b strings.Builder
	for _, r := range reqs {
		if b.Len() > 0 {
			b.WriteString(", ")
		}
		b.WriteString(r.String())
	}
	fmt.Fprintf(&b, "; unavailable: %v", unavailable)
	return b.String()
}

// CheckAllocation fails the test if allocs is not a valid allocation for reqs
// or if an allocated driver forwards the label of another request or is
// unavailable.
//
func CheckAllocation(t testing.TB, allocs []padibus.Allocation, reqs []padibus.AllocationRequest, unavailable ...coord.SynapseDriver) {
	t.Helper()
	if !padibus.Valid(allocs, reqs) {
		t.Fatalf("invalid allocation %v for %s", allocs, reqString(reqs, unavailable))
	}
	var excluded [coord.SynapseDriverOnPADIBusSize]bool
	for _, d := range unavailable {
		excluded[d] = true
	}
	for i, a := range allocs {
		for _, ds := range a.Drivers {
			for _, d := range ds {
				if excluded[d.Driver] {
					t.Fatalf("unavailable driver %v allocated", d.Driver)
				}
				for j, r := range reqs {
					if fwd := coord.Forwards(r.Label, d.Mask, d.Driver); fwd != (i == j) {
						t.Fatalf("driver %v with %v forwards %v: %v", d.Driver, d.Mask, r.Label, fwd)
					}
				}
			}
		}
	}
}

// ComparePolicies solves iter sets of random requests on a PADI bus with
// some unavailable drivers using both policies. All solutions must be valid
// and p2 must solve every problem p1 solves: p2 is expected to be complete,
// like Backtracking without time limit.
//
func ComparePolicies(t *testing.T, iter int, p1, p2 padibus.Policy) {
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))

	var solved [2]int
	start := time.Now()
	for i := 0; i < iter; i++ {
		reqs := RandomRequests(rng, 3, 5)
		var unavailable []coord.SynapseDriver
		for k := rng.Intn(4); k > 0; k-- {
			unavailable = append(unavailable, coord.SynapseDriver(rng.Intn(coord.SynapseDriverOnPADIBusSize)))
		}
		m := padibus.NewManager(unavailable...)

		a1, ok1 := m.Solve(reqs, p1)
		a2, ok2 := m.Solve(reqs, p2)
		if ok1 {
			solved[0]++
			CheckAllocation(t, a1, reqs, unavailable...)
		}
		if ok2 {
			solved[1]++
			CheckAllocation(t, a2, reqs, unavailable...)
		}
		if ok1 && !ok2 {
			t.Fatalf("%v solves %s, %v does not", p1, reqString(reqs, unavailable), p2)
		}
	}
	t.Logf("%d request sets in %v. %v solved %d, %v solved %d", iter, time.Since(start), p1, solved[0], p2, solved[1])
}
