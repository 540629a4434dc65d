// Package logx is a small structured logging facade over zerolog.
//
// Components receive a Logger value (cheap to copy, safe zero value) and the
// app owns a single Service whose sinks/level can be swapped at runtime via
// Apply() during config hot reload.
package logx
