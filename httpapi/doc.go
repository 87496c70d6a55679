// Package httpapi exposes the goEnroll engine over HTTP on a chi router.
//
// Enrollment, login, refresh and recovery routes are public. Logout and
// device management sit behind [middleware.Guard]. Every response uses the
// envelope {"success": bool, "data": ..., "reason": ...} where reason is
// [goEnroll.Reason] of the failure.
//
// # What this package must NOT do
//
//   - Make policy decisions. Status codes are derived from engine errors only.
//   - Hold account or session state.
package httpapi
