// Package recipe runs ordered action lists inside a proxy frame.
//
// Actions run strictly in declaration order and each one may consume the
// return values of the actions before it. A flash-loan action is only allowed
// in the first position; the rest of the recipe then runs from the lender's
// callback through a continuation identified by a correlation id, so a failure
// anywhere unwinds the whole borrow, execute and repay sequence together with
// the enclosing ledger transaction.
package recipe
