// Package harness runs scripted controller sessions.
//
// A scenario configures one controller, from an optional CUE form plus
// extra validators, and drives it through a list of steps. Async
// validators and the submit handler are gated: a start step launches
// them, and they block until a resolve step supplies their outcome. This
// lets a scenario script any completion order, including results that
// arrive after they were superseded.
//
// # Scenario Format
//
//	name: pluto_fans
//	description: "Cat lovers must like Pluto"
//	form: ../forms/basic.cue
//	validators:
//	  - id: unique
//	    fields: [name]
//	    async: true
//	submit: true
//	steps:
//	  - set_value: { field: name, value: "Ann" }
//	  - request_validation: { kind: unique, fields: [name] }
//	  - start_validations: { field: name }
//	  - resolve_validation:
//	      kind: unique
//	      errors: [{ message: "taken", fields: [name] }]
//	  - expect_errors:
//	      errors: [{ message: "taken", source: asynchronous }]
//
// Field lists accept a name, a list of names, or "*" for the whole form;
// omitted lists mean the whole form.
//
// # Steps
//
// Actions: set_value, touch, persist, request_validation,
// start_validations, resolve_validation, cancel_validation, start_submit,
// resolve_submit, cancel_submit. Expectations: expect_errors,
// expect_value, expect_submit, expect_status.
//
// Start and resolve steps wait until the controller has committed the
// resulting events, so each step observes the state left by the previous
// one.
//
// # Deterministic Testing
//
// Every run uses deterministic IDs ("id-1" is the form, later IDs number
// attempts in start order) and a fresh in-memory SQLite journal. The
// journal is the scenario's trace and is compared against golden files
// with goldie.
package harness
