// Package logx configures tallybot's structured logging.
//
// It is a small wrapper (logx.Logger) on top of zerolog that keeps
// console output readable (short timestamp + short caller) and the
// optional file output JSON-structured.
package logx
