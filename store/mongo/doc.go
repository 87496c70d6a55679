// Package mongo implements goEnroll.DeviceRegistry on a MongoDB collection.
// A unique index on (accountId, deviceId) backs the one-binding-per-pair
// rule; RecordUsage is a single upsert.
package mongo
