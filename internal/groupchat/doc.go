// Package groupchat holds the shared message log of a collaboration session
// and the @mention parsing that decides who hears about a message.
//
// Every message is appended to a single ordered Log. Agents do not read the
// log directly: each agent has a read cursor, and when a message addresses an
// agent the log hands it every message past its cursor and advances the
// cursor to the tail. An agent that is never addressed never sees traffic.
package groupchat
