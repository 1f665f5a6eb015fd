package storage

// Package storage provides write-through persistence for the trigger store.
//
// It currently supports:
//   - Per-guild trigger records and the guild's manager role
//   - Audit log appends (trigger mutations and fired actions)
