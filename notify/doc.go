// Package notify delivers verification codes. SMTPNotifier renders the
// code email and hands it to a Transport backed by either a knadh/smtppool
// pool or a jordan-wright/email pool. LogNotifier writes codes to a
// structured logger for local runs.
package notify
