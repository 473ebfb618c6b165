// Copyright 2018 Denis Bernard <db047h@gmail.com>
// Licensed under the MIT license. See license text in the LICENSE file.

// Package coord provides the coordinates and constants of the chip resources
// handled by the event routing: PADI buses, synapse drivers, synapse rows,
// neurons, event outputs and crossbar nodes.
//
// All tables are plain constants or are computed by explicit conversion
// methods; there is no lazily initialized global state.
//
package coord

import (
	"strconv"
)

// Chip sizes.
//
const (
	SynapseDriverOnPADIBusSize            = 32
	PADIBusOnPADIBusBlockSize             = 4
	PADIBusBlockOnDLSSize                 = 2
	PADIBusOnDLSSize                      = PADIBusOnPADIBusBlockSize * PADIBusBlockOnDLSSize
	SynapseDriverOnSynapseDriverBlockSize = SynapseDriverOnPADIBusSize * PADIBusOnPADIBusBlockSize
	SynapseRowOnSynapseDriverSize         = 2
	SynapseRowOnSynramSize                = SynapseDriverOnSynapseDriverBlockSize * SynapseRowOnSynapseDriverSize

	NeuronColumnOnDLSSize      = 256
	HemisphereOnDLSSize        = PADIBusBlockOnDLSSize
	AtomicNeuronOnDLSSize      = NeuronColumnOnDLSSize * HemisphereOnDLSSize
	NeuronEventOutputOnDLSSize = 8
	NeuronBackendBlockSize     = 2
	// event outputs per neuron backend block
	NeuronEventOutputOnBlockSize = NeuronEventOutputOnDLSSize / NeuronBackendBlockSize

	LabelSize        = 32
	MaskSize         = 32
	SynapseLabelSize = 64
	WeightMax        = 63

	SPL1AddressSize           = 4
	BackgroundSourceOnDLSSize = PADIBusOnDLSSize
)

// SynapseDriver is a synapse driver index on a single PADI bus.
//
type SynapseDriver uint8

// Label is the PADI-bus event label (row select address) compared against a
// synapse driver's address.
//
type Label uint8

// Mask selects the bits of a Label and a SynapseDriver taking part in the
// address comparison.
//
type Mask uint8

// Forwards returns true if a synapse driver forwards events with the given
// label when configured with the given compare mask.
//
func Forwards(l Label, m Mask, d SynapseDriver) bool {
	return (uint8(l) & uint8(m)) == (uint8(d) & uint8(m))
}

func (d SynapseDriver) String() string { return "SynapseDriver(" + strconv.Itoa(int(d)) + ")" }
func (l Label) String() string         { return "Label(" + strconv.Itoa(int(l)) + ")" }
func (m Mask) String() string          { return "Mask(0b" + pad(strconv.FormatUint(uint64(m), 2), 5) + ")" }

func pad(s string, n int) string {
	for len(s) < n {
		s = "0" + s
	}
	return s
}

// Hemisphere is the chip half. It is identical to the PADI-bus block, the
// synapse driver block, the synram and the neuron row.
//
type Hemisphere uint8

// Hemispheres.
//
const (
	Top Hemisphere = iota
	Bottom
)

func (h Hemisphere) String() string {
	if h == Top {
		return "top"
	}
	return "bottom"
}

// PADIBusOnBlock is a PADI bus index on a PADI-bus block.
//
type PADIBusOnBlock uint8

// PADIBus is a PADI bus on the chip.
//
type PADIBus uint8

// NewPADIBus returns the PADI bus bus on the block of hemisphere h.
//
func NewPADIBus(bus PADIBusOnBlock, h Hemisphere) PADIBus {
	return PADIBus(uint8(bus) + PADIBusOnPADIBusBlockSize*uint8(h))
}

// OnBlock returns the bus index on its block.
//
func (p PADIBus) OnBlock() PADIBusOnBlock { return PADIBusOnBlock(p % PADIBusOnPADIBusBlockSize) }

// Hemisphere returns the block of p.
//
func (p PADIBus) Hemisphere() Hemisphere { return Hemisphere(p / PADIBusOnPADIBusBlockSize) }

func (p PADIBus) String() string { return "PADIBus(" + strconv.Itoa(int(p)) + ")" }

// SynapseDriverOnDLS is a synapse driver on the chip, identified by its
// hemisphere and its index on the synapse driver block.
//
type SynapseDriverOnDLS struct {
	Hemisphere Hemisphere
	Index      uint8
}

// NewSynapseDriverOnDLS returns the global coordinate of driver d on PADI bus p.
//
func NewSynapseDriverOnDLS(d SynapseDriver, p PADIBus) SynapseDriverOnDLS {
	return SynapseDriverOnDLS{
		Hemisphere: p.Hemisphere(),
		Index:      uint8(d)*PADIBusOnPADIBusBlockSize + uint8(p.OnBlock()),
	}
}

// PADIBus returns the PADI bus driving d.
//
func (d SynapseDriverOnDLS) PADIBus() PADIBus {
	return NewPADIBus(PADIBusOnBlock(d.Index%PADIBusOnPADIBusBlockSize), d.Hemisphere)
}

// Valid returns true if d lies on the chip.
//
func (d SynapseDriverOnDLS) Valid() bool {
	return d.Hemisphere < HemisphereOnDLSSize && d.Index < SynapseDriverOnSynapseDriverBlockSize
}

// OnPADIBus returns the index of d on its PADI bus.
//
func (d SynapseDriverOnDLS) OnPADIBus() SynapseDriver {
	return SynapseDriver(d.Index / PADIBusOnPADIBusBlockSize)
}

// Rows returns both synapse rows driven by d.
//
func (d SynapseDriverOnDLS) Rows() [SynapseRowOnSynapseDriverSize]SynapseRowOnDLS {
	r := uint16(d.Index) * SynapseRowOnSynapseDriverSize
	return [SynapseRowOnSynapseDriverSize]SynapseRowOnDLS{
		{d.Hemisphere, r},
		{d.Hemisphere, r + 1},
	}
}

// Less orders drivers by hemisphere, then index.
//
func (d SynapseDriverOnDLS) Less(o SynapseDriverOnDLS) bool {
	if d.Hemisphere != o.Hemisphere {
		return d.Hemisphere < o.Hemisphere
	}
	return d.Index < o.Index
}

func (d SynapseDriverOnDLS) String() string {
	return "SynapseDriverOnDLS(" + d.Hemisphere.String() + ", " + strconv.Itoa(int(d.Index)) + ")"
}

// SynapseRowOnDLS is a synapse row on one of the two synapse arrays.
//
type SynapseRowOnDLS struct {
	Hemisphere Hemisphere
	Row        uint16
}

// Driver returns the synapse driver driving r.
//
func (r SynapseRowOnDLS) Driver() SynapseDriverOnDLS {
	return SynapseDriverOnDLS{r.Hemisphere, uint8(r.Row / SynapseRowOnSynapseDriverSize)}
}

// Sibling returns the other row driven by the same synapse driver.
//
func (r SynapseRowOnDLS) Sibling() SynapseRowOnDLS {
	return SynapseRowOnDLS{r.Hemisphere, r.Row ^ 1}
}

// Less orders rows by hemisphere, then row index.
//
func (r SynapseRowOnDLS) Less(o SynapseRowOnDLS) bool {
	if r.Hemisphere != o.Hemisphere {
		return r.Hemisphere < o.Hemisphere
	}
	return r.Row < o.Row
}

func (r SynapseRowOnDLS) String() string {
	return "SynapseRowOnDLS(" + r.Hemisphere.String() + ", " + strconv.Itoa(int(r.Row)) + ")"
}

// AtomicNeuron is an atomic neuron circuit on the chip, enumerated row major.
//
type AtomicNeuron uint16

// NewAtomicNeuron returns the neuron in column col of hemisphere h.
//
func NewAtomicNeuron(col int, h Hemisphere) AtomicNeuron {
	return AtomicNeuron(int(h)*NeuronColumnOnDLSSize + col)
}

// Column returns the neuron column.
//
func (n AtomicNeuron) Column() int { return int(n) % NeuronColumnOnDLSSize }

// Hemisphere returns the neuron row.
//
func (n AtomicNeuron) Hemisphere() Hemisphere { return Hemisphere(int(n) / NeuronColumnOnDLSSize) }

// EventOutput returns the event output serving n.
//
func (n AtomicNeuron) EventOutput() NeuronEventOutput {
	return NeuronEventOutput(n.Column() / (NeuronColumnOnDLSSize / NeuronEventOutputOnDLSSize))
}

func (n AtomicNeuron) String() string {
	return "AtomicNeuron(" + strconv.Itoa(n.Column()) + ", " + n.Hemisphere().String() + ")"
}

// NeuronEventOutput is one of the neuron event outputs feeding the crossbar.
//
type NeuronEventOutput uint8

// NewNeuronEventOutput returns the event output out on the given backend block.
//
func NewNeuronEventOutput(out PADIBusOnBlock, backendBlock int) NeuronEventOutput {
	return NeuronEventOutput(int(out) + backendBlock*NeuronEventOutputOnBlockSize)
}

// BackendBlock returns the neuron backend block of e.
//
func (e NeuronEventOutput) BackendBlock() int { return int(e) / NeuronEventOutputOnBlockSize }

// OnBlock returns the event output index on its backend block. It is equal to
// the PADI bus index on a PADI-bus block the output is routed to.
//
func (e NeuronEventOutput) OnBlock() PADIBusOnBlock {
	return PADIBusOnBlock(int(e) % NeuronEventOutputOnBlockSize)
}

func (e NeuronEventOutput) String() string {
	return "NeuronEventOutput(" + strconv.Itoa(int(e)) + ")"
}

// ReceptorType is the synaptic input type of a connection.
//
type ReceptorType uint8

// Receptor types.
//
const (
	Excitatory ReceptorType = iota
	Inhibitory
	ReceptorTypeCount = 2
)

func (r ReceptorType) String() string {
	if r == Excitatory {
		return "excitatory"
	}
	return "inhibitory"
}

// RowMode returns the synapse row mode realizing receptor type r.
//
func (r ReceptorType) RowMode() RowMode {
	if r == Excitatory {
		return RowExcitatory
	}
	return RowInhibitory
}

// RowMode is the configuration of a synapse row.
//
type RowMode uint8

// Row modes.
//
const (
	RowDisabled RowMode = iota
	RowExcitatory
	RowInhibitory
)

func (m RowMode) String() string {
	switch m {
	case RowExcitatory:
		return "excitatory"
	case RowInhibitory:
		return "inhibitory"
	}
	return "disabled"
}

// BackgroundSource is a background spike source. Each one is hard wired to
// one PADI bus.
//
type BackgroundSource uint8

// NewBackgroundSource returns the background source feeding PADI bus p.
//
func NewBackgroundSource(p PADIBus) BackgroundSource { return BackgroundSource(p) }

// PADIBus returns the PADI bus fed by s.
//
func (s BackgroundSource) PADIBus() PADIBus { return PADIBus(s) }
