// Package ir provides the SSA intermediate representation that parloop
// generates code into.
//
// The IR is a small, typed subset of LLVM IR: integer and opaque pointer
// types, literal struct types, basic blocks with explicit terminators, phi
// nodes and direct calls. Modules print in LLVM textual syntax so the output
// can be inspected or fed to LLVM tools.
//
// This package imports nothing internal. Every other internal package builds
// on it.
//
// Key design constraints:
//   - Blocks carry stable BlockIDs assigned at creation; zero is invalid
//   - Local names are unique per function and NFC-normalized
//   - The address-width integer (AddrType) is i64
//   - Builders never validate operands; Verify checks a finished function
package ir
