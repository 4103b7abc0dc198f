/*
Package statetree provides a centralized, observable application-state
container: one root value of arbitrary hierarchical shape, mutated only
through batched updates, with fine-grained change notification to
subscribers that declare interest in specific sub-paths of the tree.

Uses

- Single source of truth for UI and tool state, without widgets knowing
about each other

- Fine-grained change propagation: a subscriber to one field is not
woken by writes elsewhere in the tree

- Snapshot/restore as the building block for undo and for manual
rollback around multi-field updates

How it works

A Model owns the canonical state instance. Updates run a callable
against a write-recording Writer; the recorded (path, value) pairs apply
to the real state as one batch, and every subscription whose path is a
prefix of a touched path, or extends one, is notified exactly
once, in registration order, with freshly read values. Subscriptions
declare their paths with selectors, small pure functions over a
recording Proxy, so the tree never needs to know about observers in
advance.

Submodels are lens-shaped views bound through an accessor selector.
They forward updates, subscriptions, and snapshots to the root model
with path composition, so arbitrarily nested components can share one
state tree without global knowledge.

Concurrency

Updates are single-writer: the model performs write application and
dispatch inline, on the updating goroutine, before Update returns.
Subscribing, disconnecting tokens, and Wait may be used from other
goroutines; concurrent updates are the caller's responsibility to
serialize.
*/
package statetree
