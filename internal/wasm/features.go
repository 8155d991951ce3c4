package wasm

// Features gates behaviors that the MVP binary format leaves to host
// policy. The zero value is the strict MVP default.
type Features struct {
	// MutableGlobalImport allows importing a global declared mutable.
	// Off by default per the whole-module invariant that mutable globals
	// are not importable unless explicitly enabled.
	MutableGlobalImport bool
}
