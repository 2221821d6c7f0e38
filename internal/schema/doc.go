// Package schema loads form definitions written in CUE and turns them into
// controller configuration.
//
// A form file declares one top-level form struct:
//
//	form: {
//		name: "basic"
//		initial: {name: "", planet: "__unset__"}
//		fields: {
//			name:    string & !="" @msg("Name is required.")
//			planet?: "__unset__" | "earth" | "mars" | "pluto"
//		}
//		rules: name: "max=64"
//		checks: plutoFans: {
//			message: "If you like cats, you must also like Pluto."
//			when: pet: "cat"
//			require: planet: "pluto"
//		}
//	}
//
// fields are CUE constraints unified with each value (optional fields are
// only checked when present), rules are validator tag strings (see package
// rules), and checks are whole-form conditions: when every "when"
// constraint holds, every "require" constraint must hold too.
package schema
