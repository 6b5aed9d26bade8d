// Package triggers owns the lifecycle of scheduled intents.
//
// The engine never runs a background loop. External workers drive it:
//
//  1. Pending lists due triggers, flagging condition triggers that are
//     still cooling down.
//  2. Claim takes a five minute lease on one trigger. Exactly one of any
//     number of concurrent claimants wins; the rest get a conflict.
//  3. The worker evaluates and delivers on its own, then calls Fire with the
//     outcome. Fire releases the lease, applies cooldown and auto-disable
//     policies, computes the next check and appends an execution record.
//
// Leases are never renewed. A worker that crashes simply lets its lease
// lapse and the trigger becomes claimable again.
//
// Mutual exclusion is delegated to row locks in the store; nothing in this
// package holds an in-process lock, so any number of service replicas can
// share one database.
package triggers
