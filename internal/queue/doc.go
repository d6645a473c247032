// Package queue defines the task model and its SQLite-backed store.
//
// Tasks move through the status lifecycle pending → in_progress →
// (retrying ⇄ in_progress) → completed/failed/cancelled, with paused as a
// resumable detour. Workers own a task through conditional updates
// (UpdateOwned/ClaimNextPending); control surfaces use Transition, which is
// guarded by the same status precondition, so cross-process writers cannot
// clobber each other.
package queue
