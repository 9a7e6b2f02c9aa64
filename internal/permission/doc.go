// Package permission decides whether an agent may invoke a tool or run a
// command.
//
// # Patterns
//
// Allow and deny lists hold wildcard patterns. '*' matches any run of
// characters (including none) and '?' matches exactly one character. Every
// other character matches itself, case-sensitively, and a pattern must match
// the whole candidate:
//
//	Match("cargo test -p app-*", "cargo test -p app-core") // true
//	Match("git ?ush", "git push")                              // true
//	Match("apply_patch", "Apply_Patch")                        // false
//
// # Policies
//
// A Policy carries four pattern lists: tool allow/deny and command
// allow/deny. Evaluation is deny-first: a matching deny pattern always wins,
// and a non-empty allow list admits only what it matches. An empty allow
// list admits everything that was not denied.
//
//	p := Policy{ToolDeny: []string{"apply_patch"}}
//	p.Evaluate(ToolAttempt("apply_patch")).Admit // false
//	p.Evaluate(ToolAttempt("shell")).Admit       // true
//
// Command attempts are also checked segment by segment: a compound shell
// line such as "cd src && rm -rf build" is parsed with mvdan.cc/sh and each
// simple command must pass on its own.
//
// # Inheritance
//
// Child agents inherit their parent's policy. An Override replaces whole
// lists; a nil list in an Override keeps the parent's list unchanged. Lists
// are never merged.
package permission
