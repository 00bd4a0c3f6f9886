// Package fsm sequences a tlsecho process from argument parsing to exit.
//
// The machine walks a closed set of states:
//
//	Init -> ParseArgs -> ValidateConfig -> ModeSelect -> ServerMode | ClientStandard -> Cleanup -> Exit
//
// Any stage that fails sets a failure exit code and jumps straight to
// Cleanup; help output does the same with a success code. Cleanup runs
// exactly once on every path, including after a panic in a stage, and always
// hands over to Exit.
//
// Parsing, validation and the two mode loops are injected so the machine can
// be driven entirely from tests.
package fsm
