// Package logx wraps zerolog behind a small Logger type with functional
// fields, so components don't depend on zerolog directly.
//
// The file sink is the durable log: security audit warnings land there even
// when the console is disabled.
package logx
