// Package simserver is the reference backend for feedsim: a fiber app
// serving posts, reactions, comments, replies, persona simulation and the
// generation and explanation stand-ins over internal/store.
//
// Personas are loaded from CUE and validated against an embedded schema.
// Simulation decisions come from a Decider (a stable hash by default) and
// all text from a Writer, so the same database and round always produce
// the same outcome.
package simserver
