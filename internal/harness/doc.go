// Package harness runs live query scenarios against a real store.
//
// A scenario declares entity kinds, the query a component declares, and a
// list of steps that write records, render the component, customize its
// sort or filter, switch store contexts and deliver notifications. Each
// step appends one line to a text trace. Steps may carry expectations,
// and the whole trace can be compared against a golden file.
//
// # Scenario Format
//
//	name: sort_survives_reconstruction
//	description: "A user-chosen sort survives rebuilding the component"
//	discipline: eager
//	entities:
//	  Item: { timestamp: int, title: string, done: bool }
//	declare:
//	  entity: Item
//	  sort: ["timestamp:asc"]
//	steps:
//	  - op: put
//	    entity: Item
//	    id: a
//	    fields: { timestamp: 1, title: first, done: false }
//	  - op: render
//	    expect: { phase: updated, ids: [a] }
//	  - op: sort
//	    sort: ["timestamp:desc"]
//	  - op: rebuild
//	  - op: render
//
// # Step Ops
//
//	put      entity, id, fields    store a record
//	update   id, fields            merge fields into a record
//	delete   id                    remove a record
//	render   [context], [token]    Monitor.Render on the current context
//	read                           Holder.Read without applying a query
//	state                          current phase, never fetches
//	refetch                        Holder.Refetch
//	sort     sort                  Holder.SetSortKeys
//	filter   where                 Holder.SetFilter
//	rebuild                        replace the Monitor, keep the Holder
//	switch   context               make context current for later renders
//	fail     [context], error      make fetches through context fail
//	recover  [context]             clear a fail
//	process  [context]             deliver pending notifications
//
// Each scenario runs in a fresh in-memory database. Record ids come from
// the scenario; context ids are never printed, so traces are stable.
package harness
