package mongo

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	goEnroll "github.com/MrEthical07/goEnroll"
)

// CollectionName is the default collection for saved-account bindings.
const CollectionName = "saved_accounts"

type deviceDoc struct {
	Name       string `bson:"name,omitempty"`
	Platform   string `bson:"platform,omitempty"`
	Model      string `bson:"model,omitempty"`
	OSVersion  string `bson:"osVersion,omitempty"`
	AppVersion string `bson:"appVersion,omitempty"`
}

type settingsDoc struct {
	BiometricEnabled  bool `bson:"biometricEnabled"`
	QuickLoginEnabled bool `bson:"quickLoginEnabled"`
}

type bindingDoc struct {
	AccountID      string      `bson:"accountId"`
	DeviceID       string      `bson:"deviceId"`
	Device         deviceDoc   `bson:"device"`
	Settings       settingsDoc `bson:"settings"`
	AccessCount    int         `bson:"accessCount"`
	FirstSavedAt   time.Time   `bson:"firstSavedAt"`
	LastAccessedAt time.Time   `bson:"lastAccessedAt"`
	IsActive       bool        `bson:"isActive"`
	DeactivatedAt  *time.Time  `bson:"deactivatedAt,omitempty"`
}

func (d bindingDoc) toSavedAccount() goEnroll.SavedAccount {
	return goEnroll.SavedAccount{
		AccountID: d.AccountID,
		DeviceID:  d.DeviceID,
		Device: goEnroll.DeviceInfo{
			DeviceID:   d.DeviceID,
			Name:       d.Device.Name,
			Platform:   d.Device.Platform,
			Model:      d.Device.Model,
			OSVersion:  d.Device.OSVersion,
			AppVersion: d.Device.AppVersion,
		},
		Settings: goEnroll.DeviceSettings{
			BiometricEnabled:  d.Settings.BiometricEnabled,
			QuickLoginEnabled: d.Settings.QuickLoginEnabled,
		},
		AccessCount:    d.AccessCount,
		FirstSavedAt:   d.FirstSavedAt,
		LastAccessedAt: d.LastAccessedAt,
		IsActive:       d.IsActive,
		DeactivatedAt:  d.DeactivatedAt,
	}
}

// DeviceRegistry implements goEnroll.DeviceRegistry.
type DeviceRegistry struct {
	coll *mongo.Collection
}

// NewDeviceRegistry returns a registry over coll.
func NewDeviceRegistry(coll *mongo.Collection) *DeviceRegistry {
	return &DeviceRegistry{coll: coll}
}

// Connect opens a client, pings it and returns the bindings collection of
// database.
func Connect(ctx context.Context, uri, database string, timeout time.Duration) (*mongo.Client, *mongo.Collection, error) {
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	client, err := mongo.Connect(cctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, nil, err
	}
	if err := client.Ping(cctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, nil, err
	}
	return client, client.Database(database).Collection(CollectionName), nil
}

// EnsureIndexes creates the unique pair index and the per-device recency
// index.
func (r *DeviceRegistry) EnsureIndexes(ctx context.Context) error {
	_, err := r.coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys: bson.D{
				{Key: "accountId", Value: 1},
				{Key: "deviceId", Value: 1},
			},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{
				{Key: "deviceId", Value: 1},
				{Key: "lastAccessedAt", Value: -1},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("mongo: create indexes: %w", err)
	}
	return nil
}

// RecordUsage implements goEnroll.DeviceRegistry.
func (r *DeviceRegistry) RecordUsage(ctx context.Context, accountID string, device goEnroll.DeviceInfo, settings *goEnroll.DeviceSettings, at time.Time) error {
	set := bson.M{
		"device": deviceDoc{
			Name:       device.Name,
			Platform:   device.Platform,
			Model:      device.Model,
			OSVersion:  device.OSVersion,
			AppVersion: device.AppVersion,
		},
		"lastAccessedAt": at,
		"isActive":       true,
	}
	setOnInsert := bson.M{"firstSavedAt": at}

	s := goEnroll.DefaultDeviceSettings()
	if settings != nil {
		s = *settings
		set["settings"] = settingsDoc(s)
	} else {
		setOnInsert["settings"] = settingsDoc(s)
	}

	_, err := r.coll.UpdateOne(ctx,
		bson.M{"accountId": accountID, "deviceId": device.DeviceID},
		bson.M{
			"$set":         set,
			"$unset":       bson.M{"deactivatedAt": ""},
			"$inc":         bson.M{"accessCount": 1},
			"$setOnInsert": setOnInsert,
		},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("mongo: record device usage: %w", err)
	}
	return nil
}

// ListForDevice implements goEnroll.DeviceRegistry.
func (r *DeviceRegistry) ListForDevice(ctx context.Context, deviceID string) ([]goEnroll.SavedAccount, error) {
	return r.list(ctx, bson.M{"deviceId": deviceID, "isActive": true})
}

// ListForAccount implements goEnroll.DeviceRegistry.
func (r *DeviceRegistry) ListForAccount(ctx context.Context, accountID string) ([]goEnroll.SavedAccount, error) {
	return r.list(ctx, bson.M{"accountId": accountID, "isActive": true})
}

func (r *DeviceRegistry) list(ctx context.Context, filter bson.M) ([]goEnroll.SavedAccount, error) {
	cur, err := r.coll.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "lastAccessedAt", Value: -1}}))
	if err != nil {
		return nil, fmt.Errorf("mongo: list bindings: %w", err)
	}
	var docs []bindingDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("mongo: list bindings: %w", err)
	}

	out := make([]goEnroll.SavedAccount, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.toSavedAccount())
	}
	return out, nil
}

// Deactivate implements goEnroll.DeviceRegistry.
func (r *DeviceRegistry) Deactivate(ctx context.Context, accountID, deviceID string, at time.Time) (bool, error) {
	res, err := r.coll.UpdateOne(ctx,
		bson.M{"accountId": accountID, "deviceId": deviceID, "isActive": true},
		deactivation(at),
	)
	if err != nil {
		return false, fmt.Errorf("mongo: deactivate binding: %w", err)
	}
	return res.MatchedCount == 1, nil
}

// DeactivateDevice implements goEnroll.DeviceRegistry.
func (r *DeviceRegistry) DeactivateDevice(ctx context.Context, deviceID string, at time.Time) (int, error) {
	return r.deactivateMany(ctx, bson.M{"deviceId": deviceID, "isActive": true}, at)
}

// DeactivateAccount implements goEnroll.DeviceRegistry.
func (r *DeviceRegistry) DeactivateAccount(ctx context.Context, accountID string, at time.Time) (int, error) {
	return r.deactivateMany(ctx, bson.M{"accountId": accountID, "isActive": true}, at)
}

func (r *DeviceRegistry) deactivateMany(ctx context.Context, filter bson.M, at time.Time) (int, error) {
	res, err := r.coll.UpdateMany(ctx, filter, deactivation(at))
	if err != nil {
		return 0, fmt.Errorf("mongo: deactivate bindings: %w", err)
	}
	return int(res.MatchedCount), nil
}

func deactivation(at time.Time) bson.M {
	return bson.M{"$set": bson.M{"isActive": false, "deactivatedAt": at}}
}

// UpdateSettings implements goEnroll.DeviceRegistry.
func (r *DeviceRegistry) UpdateSettings(ctx context.Context, accountID, deviceID string, settings goEnroll.DeviceSettings) (bool, error) {
	res, err := r.coll.UpdateOne(ctx,
		bson.M{"accountId": accountID, "deviceId": deviceID, "isActive": true},
		bson.M{"$set": bson.M{"settings": settingsDoc(settings)}},
	)
	if err != nil {
		return false, fmt.Errorf("mongo: update device settings: %w", err)
	}
	return res.MatchedCount == 1, nil
}

// PurgeInactive implements goEnroll.DeviceRegistry.
func (r *DeviceRegistry) PurgeInactive(ctx context.Context, before time.Time) (int, error) {
	res, err := r.coll.DeleteMany(ctx, bson.M{
		"isActive":      false,
		"deactivatedAt": bson.M{"$lt": before},
	})
	if err != nil {
		return 0, fmt.Errorf("mongo: purge bindings: %w", err)
	}
	return int(res.DeletedCount), nil
}
