// Package xact implements the fixed, 11-state workflow graph every
// ingested file travels through. The graph itself is
// static and has no knowledge of Items, commands, or the filesystem -
// it only knows which triggers are legal from which states, and that
// entering a state synchronously dispatches to an EnterHandler.
/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package xact

import (
	"github.com/matthutchison/cryoempipe/cmn/cos"
	"github.com/matthutchison/cryoempipe/cmn/nlog"
)

// State names the fixed set of workflow states.
type State string

const (
	Initial    State = "initial"
	Creating   State = "creating"
	Importing  State = "importing"
	Converting State = "converting"
	Stacking   State = "stacking"
	Compressing State = "compressing"
	Exporting  State = "exporting"
	Processing State = "processing"
	Confirming State = "confirming"
	Cleaning   State = "cleaning"
	Finished   State = "finished"
)

// Trigger names a transition request.
type Trigger string

const (
	Initialize    Trigger = "initialize"
	ImportFile    Trigger = "import_file"
	ConvertToMRC  Trigger = "convert_to_mrc"
	Stack         Trigger = "stack"
	Compress      Trigger = "compress"
	Export        Trigger = "export"
	HoldForProcessing Trigger = "hold_for_processing"
	Confirm       Trigger = "confirm"
	Clean         Trigger = "clean"
	Finalize      Trigger = "finalize"
)

// transition maps a trigger to its allowed source states and destination.
type transition struct {
	sources     map[State]struct{}
	destination State
}

func from(states ...State) map[State]struct{} {
	m := make(map[State]struct{}, len(states))
	for _, s := range states {
		m[s] = struct{}{}
	}
	return m
}

// table is the fixed transition graph. It never
// changes at runtime - there is no general-purpose workflow framework
// here, just this one graph.
var table = map[Trigger]transition{
	Initialize:        {from(Initial), Creating},
	ImportFile:        {from(Creating, Importing), Importing},
	ConvertToMRC:      {from(Converting, Importing), Converting},
	Stack:             {from(Importing, Stacking), Stacking},
	Compress:          {from(Importing, Stacking, Compressing, Converting), Compressing},
	Export:            {from(Compressing, Exporting), Exporting},
	HoldForProcessing: {from(Exporting, Processing), Processing},
	Confirm:           {from(Processing, Exporting), Confirming},
	Clean:             {from(Stacking, Confirming), Cleaning},
	Finalize:          {from(Cleaning), Finished},
}

// EnterHandler is implemented by whatever is bound to a Machine - in
// this pipeline, a *ingest.Item - to receive on_enter_<state> dispatch.
// A state the handler has no case for (for *ingest.Item, "initial") is
// a no-op.
type EnterHandler interface {
	OnEnter(state State)
}

// Machine is one Item's state-machine instance: current state plus the
// bound handler that synchronous Fire dispatches to on entry.
type Machine struct {
	label   string // original path or equivalent, for log messages only
	state   State
	handler EnterHandler
}

// New constructs a Machine in the given starting state. Child Items
// start in Initial; parent stack items are registered directly into
// Stacking, bypassing Initial.
func New(label string, start State, handler EnterHandler) *Machine {
	return &Machine{label: label, state: start, handler: handler}
}

// State returns the machine's current state.
func (m *Machine) State() State { return m.state }

// Fire attempts the named trigger. A trigger not allowed from the current
// state is logged at info here and returned as *cos.ErrTransitionDenied;
// an unknown trigger returns the same error without logging. The caller
// is expected to drop it, never crash the process. A legal trigger
// updates state and synchronously invokes OnEnter before returning.
func (m *Machine) Fire(trigger Trigger) error {
	t, ok := table[trigger]
	if !ok {
		return &cos.ErrTransitionDenied{Trigger: string(trigger), From: string(m.state)}
	}
	if _, allowed := t.sources[m.state]; !allowed {
		err := &cos.ErrTransitionDenied{Trigger: string(trigger), From: string(m.state)}
		nlog.Infof("%s: %s", m.label, err.Error())
		return err
	}
	m.state = t.destination
	if m.handler != nil {
		m.handler.OnEnter(m.state)
	}
	return nil
}
