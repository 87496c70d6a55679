// Package memory provides in-process implementations of goEnroll.AccountStore
// and goEnroll.DeviceRegistry for tests and single-node development runs.
//
// Every method takes one mutex, so the scan decision and the registration
// upsert are atomic with respect to each other. Returned values are copies.
package memory
