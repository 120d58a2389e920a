// Package vm executes compiled template bytecode.
//
// This package contains:
//   - Context: the per-render frame stack, variable table and output buffer
//   - Engine: a per-instance opcode dispatch table
//   - the Formatter, Predicate and Locale plugin contract
//   - partial and macro application with recursion limits
//
// Diagnostics raised while rendering are collected on the Context; a render
// always produces output.
package vm
