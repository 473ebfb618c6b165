/*
Package grenade routes placed spiking networks onto the event routing
resources of a neuromorphic chip.

A Network holds populations of placed neurons, off-chip (external) and
on-chip background spike sources, the projections between them and the
plasticity rules acting on the projections. Route computes a RoutingResult:
the spike labels of all sources, the synapse drivers and synapse rows serving
each source, the placement of every connection on the synapse arrays and the
configuration of the event crossbar.

Routing proceeds in three stages. The sources are partitioned into groups
sharing a PADI-bus label (package source), synapse drivers are allocated to
the groups on all PADI buses (package dls, delegating single buses to
package padibus) and finally connections are placed onto the rows of the
allocated drivers.

RequiresRouting decides whether a routing computed for a previous version of
a network still serves the current one. Networks and routing results are
serialized as Snapshots, which package store persists.

*/
package grenade
