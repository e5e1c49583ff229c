// Package wire defines the line protocol spoken by the OZ Optics DD-100-MC
// attenuator controller: the command vocabulary, the response terminal marker,
// and the fault-token table.
package wire

import "strings"

const (
	// CRLF terminates every outbound command line.
	CRLF = "\r\n"

	// Done is the terminal marker the controller appends when it has
	// finished responding to a command. It may arrive in the same chunk
	// as the payload or in a later one.
	Done = "Done"

	// ErrorPrefix starts every fault token reported by the controller.
	ErrorPrefix = "Error-"
)

// commands is the legality table of mnemonics the controller accepts.
var commands = map[string]struct{}{
	"A":    {}, // set attenuation
	"A?":   {}, // get attenuation
	"B":    {}, // step one step backward
	"CD":   {}, // dump unit configuration to the serial port
	"D":    {}, // get current attenuation and step position
	"E0":   {}, // echo off
	"E1":   {}, // echo on
	"F":    {}, // step one step forward
	"H":    {}, // re-home the unit
	"L":    {}, // set insertion loss
	"RES?": {}, // read previous command response
	"RST":  {}, // restart in self-test mode
	"S?":   {}, // get step position
	"S":    {}, // set step position
	"S+":   {}, // move forward by n steps
	"S-":   {}, // move backward by n steps
}

// parameterized is the subset of commands that carry a scalar argument,
// concatenated directly after the mnemonic with no separator.
var parameterized = map[string]struct{}{
	"A":  {},
	"L":  {},
	"S":  {},
	"S+": {},
	"S-": {},
}

// faults maps controller fault tokens to human-readable descriptions.
// Done doubles as the no-error sentinel.
var faults = map[string]string{
	"Done":    "No error.",
	"Error-2": "Bad command. The command is ignored.",
	"Error-5": "Home sensor error. Return unit to factory for repair.",
	"Error-6": "Overflow. The command is ignored.",
	"Error-7": "Motor voltage exceeds safe limits.",
}

// UnknownFault is the description used for fault tokens absent from the table.
const UnknownFault = "Unknown error"

// Normalize canonicalizes a mnemonic for legality checking: trailing
// whitespace stripped, upper-cased.
func Normalize(mnemonic string) string {
	return strings.ToUpper(strings.TrimRight(mnemonic, " \t\r\n"))
}

// Known reports whether the mnemonic is in the controller's command set.
// The check is case-insensitive and ignores trailing whitespace.
func Known(mnemonic string) bool {
	_, ok := commands[Normalize(mnemonic)]
	return ok
}

// TakesParameter reports whether the mnemonic accepts a scalar argument.
func TakesParameter(mnemonic string) bool {
	_, ok := parameterized[Normalize(mnemonic)]
	return ok
}

// FaultText returns the human-readable description for a fault token,
// stripping trailing whitespace before the lookup. Unrecognized tokens
// map to UnknownFault.
func FaultText(token string) string {
	if text, ok := faults[strings.TrimRight(token, " \t\r\n")]; ok {
		return text
	}
	return UnknownFault
}
