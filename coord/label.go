package coord

import (
	"fmt"
)

// SynapseLabel is the 6 bit source address matched by synapses.
//
type SynapseLabel uint8

// NeuronLabel is the 14 bit label part of a spike label the crossbar filters on.
//
type NeuronLabel uint16

// NeuronBackendAddressOut is the 11 bit label a neuron sends on its event output.
//
type NeuronBackendAddressOut uint16

// NeuronBackendAddressOutSize is the number of distinct NeuronBackendAddressOut values.
//
const NeuronBackendAddressOutSize = 1 << 11

// SpikeLabel is a complete 16 bit event label:
//
//	bits  0..5   synapse label
//	bits  6..10  row select address (PADI-bus label)
//	bits 11..13  neuron event output
//	bits 14..15  SPL1 address
//
type SpikeLabel uint16

const (
	synapseLabelShift = 0
	rowSelectShift    = 6
	eventOutputShift  = 11
	spl1Shift         = 14

	synapseLabelMask = 0x3f
	rowSelectMask    = 0x1f
	eventOutputMask  = 0x7
	spl1Mask         = 0x3
)

func (l SpikeLabel) set(shift, mask, v uint16) SpikeLabel {
	return SpikeLabel((uint16(l) &^ (mask << shift)) | (v&mask)<<shift)
}

func (l SpikeLabel) get(shift, mask uint16) uint16 {
	return (uint16(l) >> shift) & mask
}

// WithSynapseLabel returns l with its synapse label set to v.
//
func (l SpikeLabel) WithSynapseLabel(v SynapseLabel) SpikeLabel {
	return l.set(synapseLabelShift, synapseLabelMask, uint16(v))
}

// WithRowSelect returns l with its row select address set to v.
//
func (l SpikeLabel) WithRowSelect(v Label) SpikeLabel {
	return l.set(rowSelectShift, rowSelectMask, uint16(v))
}

// WithEventOutput returns l with its neuron event output set to v.
//
func (l SpikeLabel) WithEventOutput(v NeuronEventOutput) SpikeLabel {
	return l.set(eventOutputShift, eventOutputMask, uint16(v))
}

// WithSPL1 returns l with its SPL1 address set to v.
//
func (l SpikeLabel) WithSPL1(v PADIBusOnBlock) SpikeLabel {
	return l.set(spl1Shift, spl1Mask, uint16(v))
}

// WithNeuronLabel returns l with its lower 14 bits set to v.
//
func (l SpikeLabel) WithNeuronLabel(v NeuronLabel) SpikeLabel {
	return l.set(0, 0x3fff, uint16(v))
}

// WithBackendAddressOut returns l with its lower 11 bits set to v.
//
func (l SpikeLabel) WithBackendAddressOut(v NeuronBackendAddressOut) SpikeLabel {
	return l.set(0, 0x7ff, uint16(v))
}

func (l SpikeLabel) SynapseLabel() SynapseLabel {
	return SynapseLabel(l.get(synapseLabelShift, synapseLabelMask))
}
func (l SpikeLabel) RowSelect() Label { return Label(l.get(rowSelectShift, rowSelectMask)) }
func (l SpikeLabel) EventOutput() NeuronEventOutput {
	return NeuronEventOutput(l.get(eventOutputShift, eventOutputMask))
}
func (l SpikeLabel) SPL1() PADIBusOnBlock      { return PADIBusOnBlock(l.get(spl1Shift, spl1Mask)) }
func (l SpikeLabel) NeuronLabel() NeuronLabel { return NeuronLabel(l.get(0, 0x3fff)) }
func (l SpikeLabel) BackendAddressOut() NeuronBackendAddressOut {
	return NeuronBackendAddressOut(l.get(0, 0x7ff))
}

func (l SpikeLabel) String() string {
	return fmt.Sprintf("SpikeLabel(0x%04x spl1=%d out=%d row=%d syn=%d)",
		uint16(l), l.SPL1(), l.EventOutput(), l.RowSelect(), l.SynapseLabel())
}

// CrossbarInput is an input of the event crossbar.
//
//	 0..7   neuron event outputs
//	 8..11  SPL1 (off-chip) inputs
//	12..19  background spike sources
//
type CrossbarInput uint8

// CrossbarOutput is an output of the event crossbar.
//
//	0..7   PADI buses
//	8..11  L2 (off-chip) outputs
//
type CrossbarOutput uint8

// Crossbar input and output offsets.
//
const (
	CrossbarInputSPL1Offset       = NeuronEventOutputOnDLSSize
	CrossbarInputBackgroundOffset = CrossbarInputSPL1Offset + SPL1AddressSize
	CrossbarOutputL2Offset        = PADIBusOnDLSSize
)

// CrossbarInput returns the crossbar input of e.
//
func (e NeuronEventOutput) CrossbarInput() CrossbarInput { return CrossbarInput(e) }

// CrossbarInputSPL1 returns the crossbar input fed by SPL1 address a.
//
func CrossbarInputSPL1(a PADIBusOnBlock) CrossbarInput {
	return CrossbarInput(CrossbarInputSPL1Offset + int(a))
}

// CrossbarInput returns the crossbar input of s.
//
func (s BackgroundSource) CrossbarInput() CrossbarInput {
	return CrossbarInput(CrossbarInputBackgroundOffset + int(s))
}

// CrossbarOutput returns the crossbar output driving p.
//
func (p PADIBus) CrossbarOutput() CrossbarOutput { return CrossbarOutput(p) }

// CrossbarOutputL2 returns the crossbar output to L2 channel i.
//
func CrossbarOutputL2(i int) CrossbarOutput { return CrossbarOutput(CrossbarOutputL2Offset + i) }

// CrossbarNodeOnDLS is a node of the event crossbar.
//
type CrossbarNodeOnDLS struct {
	Input  CrossbarInput
	Output CrossbarOutput
}

// Less orders nodes by output, then input.
//
func (c CrossbarNodeOnDLS) Less(o CrossbarNodeOnDLS) bool {
	if c.Output != o.Output {
		return c.Output < o.Output
	}
	return c.Input < o.Input
}

func (c CrossbarNodeOnDLS) String() string {
	return fmt.Sprintf("CrossbarNode(%d -> %d)", c.Input, c.Output)
}

// CrossbarNode is the configuration of a crossbar node. Events pass if
// (label & Mask) == Target and the node is enabled.
//
type CrossbarNode struct {
	Enabled bool
	Mask    NeuronLabel
	Target  NeuronLabel
}

// CrossbarForward is an enabled node without filter.
//
var CrossbarForward = CrossbarNode{Enabled: true}

// CrossbarDropAll is a disabled node.
//
var CrossbarDropAll = CrossbarNode{}

// Forwards returns true if events with label l pass node n.
//
func (n CrossbarNode) Forwards(l SpikeLabel) bool {
	return n.Enabled && (l.NeuronLabel()&n.Mask) == n.Target
}
