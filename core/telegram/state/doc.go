// Package state provides a lightweight dialog engine and per-chat session registry for Telegram bots.
// It is intentionally domain-agnostic so it can be reused across bots.
//
// A Process is an ordered chain of Prompt and Validate steps. Prompts never consume
// input, so they run back to back until the next Validate step is reached. Validate
// steps return Accepted or Retry; values are collected in memory and handed to the
// completion handler only once the chain is exhausted.
//
// A Session owns at most one Process and the role command set of one identity. All
// mutation of a Session happens on the worker that owns its identity, so the package
// itself does not lock session state.
package state
