// Package vm executes regvm bytecode.
//
// A Thread owns a call stack of fixed-size frame windows over its stack
// memory, five registers (A, B, C, X, Y) and an auxiliary value stack.
// Threads may share one HeapMemory. Each opcode is implemented by an
// Executor registered in a dispatch table; executors resolve their operand
// through the addressing modes in resolve.go and report fatal errors as a
// *ThreadPanic carrying the reason, the executor's code location and the
// frames that were active.
//
// The execution loop (Thread.Step and Thread.Run) advances the program
// counter after each instruction unless the executor jumped, pauses on
// BRK and stops with an ExitCode: Success when the outermost frame
// returns, OutOfInstructions when the counter leaves the program,
// StackOverflow or Panicked on error.
//
// Debugger, Profiler and Tracer observe a running thread.
package vm
