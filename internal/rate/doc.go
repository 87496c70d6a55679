// Package rate provides Redis-backed fixed-window throttling for login,
// QR scan and code resend.
//
// # Window semantics
//
// Fixed-window counters: INCR + conditional EXPIRE on first hit. Key kinds:
//   - rl:login:   failed logins per username
//   - rl:loginip: failed logins per client IP
//   - rl:scan:    QR scans per client IP
//   - rl:resend:  code resends per email
package rate
