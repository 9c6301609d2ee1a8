// Package types holds the value objects shared between the agentmux client,
// its sessions, and callers: tool/permission/user-input/hook invocations,
// session and lifecycle events, and the metadata returned by the runtime's
// read-only methods.
//
// Wire payloads in this protocol are JSON objects; the types here mirror the
// documented keys of those objects. Request and response structures that the
// runtime derives from its own schema are deliberately not reproduced; the
// client assembles outbound payloads as maps and decodes inbound ones into
// the types below only where callers need them.
package types
