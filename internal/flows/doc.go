// Package flows holds the pure policy decisions of the enrollment engine:
// the QR scan decision table, quick-login eligibility with the
// re-authentication window, session selection and recovery actions.
//
// Functions here take plain state snapshots and a time, perform no I/O and
// are shared by the Engine and the account store implementations so the
// same table is applied inside store transactions.
package flows
