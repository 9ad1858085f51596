// Package internal contains the core implementation packages for the Singlet
// component runtime.
//
// This package follows Go's internal package convention, making these
// packages unavailable for import by external modules while providing
// all the core functionality for the singlet CLI and runtime.
//
// # Package Organization
//
// The internal packages are organized by functional domain:
//
//   - segment: splits single-file component sources into template, script,
//     and style segments
//   - binding: discovers template bindings and builds per-instance tables
//   - rewrite: the script compiler that redirects bound identifiers through
//     reactive state
//   - state: the per-instance reactive state store
//   - render: the incremental render engine
//   - runtime: component definitions, instances, lifecycle, and registration
//   - dom: headless DOM helpers over golang.org/x/net/html
//   - fetch: source text fetching with caching and admission control
//   - store: the shared cross-component publish/subscribe store
//   - config: configuration management via viper
//   - errors: structured error taxonomy for all runtime failure classes
//   - logging: structured logging over log/slog
//   - watcher: file system monitoring with debouncing
//   - server: preview HTTP server with WebSocket live reload
//
// # Inter-Package Communication
//
// The runtime package composes the rest: segment output feeds binding
// discovery, binding tables drive the rewrite pass, rewritten scripts
// execute against state, and state writes trigger the render engine. All
// evaluation boundaries catch errors locally so a failing script or
// expression can never break the render loop or a registration batch.
package internal
