package mongo

import (
	"context"
	"testing"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/integration/mtest"

	goEnroll "github.com/MrEthical07/goEnroll"
)

var at = time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

func TestDeviceRegistry(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))
	ctx := context.Background()

	mt.Run("record usage", func(mt *mtest.T) {
		r := NewDeviceRegistry(mt.Coll)
		mt.AddMockResponses(mtest.CreateSuccessResponse(
			bson.E{Key: "n", Value: 1},
			bson.E{Key: "nModified", Value: 1},
		))

		err := r.RecordUsage(ctx, "acc-1", goEnroll.DeviceInfo{DeviceID: "d1", Name: "Pixel"}, nil, at)
		if err != nil {
			mt.Fatalf("RecordUsage: %v", err)
		}
	})

	mt.Run("list for device", func(mt *mtest.T) {
		r := NewDeviceRegistry(mt.Coll)
		ns := mt.Coll.Database().Name() + "." + mt.Coll.Name()
		mt.AddMockResponses(mtest.CreateCursorResponse(0, ns, mtest.FirstBatch,
			bson.D{
				{Key: "accountId", Value: "acc-2"},
				{Key: "deviceId", Value: "d1"},
				{Key: "device", Value: bson.D{{Key: "name", Value: "Pixel"}}},
				{Key: "settings", Value: bson.D{{Key: "quickLoginEnabled", Value: true}}},
				{Key: "accessCount", Value: 3},
				{Key: "firstSavedAt", Value: at},
				{Key: "lastAccessedAt", Value: at.Add(time.Hour)},
				{Key: "isActive", Value: true},
			},
			bson.D{
				{Key: "accountId", Value: "acc-1"},
				{Key: "deviceId", Value: "d1"},
				{Key: "accessCount", Value: 1},
				{Key: "firstSavedAt", Value: at},
				{Key: "lastAccessedAt", Value: at},
				{Key: "isActive", Value: true},
			},
		))

		list, err := r.ListForDevice(ctx, "d1")
		if err != nil {
			mt.Fatalf("ListForDevice: %v", err)
		}
		if len(list) != 2 {
			mt.Fatalf("expected 2 bindings, got %d", len(list))
		}
		if list[0].AccountID != "acc-2" || list[0].AccessCount != 3 || list[0].Device.Name != "Pixel" {
			mt.Fatalf("unexpected first binding: %+v", list[0])
		}
		if !list[0].Settings.QuickLoginEnabled || list[0].Device.DeviceID != "d1" {
			mt.Fatalf("settings or device id not decoded: %+v", list[0])
		}
	})

	mt.Run("deactivate reports match", func(mt *mtest.T) {
		r := NewDeviceRegistry(mt.Coll)
		mt.AddMockResponses(mtest.CreateSuccessResponse(
			bson.E{Key: "n", Value: 0},
			bson.E{Key: "nModified", Value: 0},
		))

		ok, err := r.Deactivate(ctx, "acc-1", "d1", at)
		if err != nil {
			mt.Fatalf("Deactivate: %v", err)
		}
		if ok {
			mt.Fatalf("nothing matched, expected false")
		}
	})

	mt.Run("deactivate account counts", func(mt *mtest.T) {
		r := NewDeviceRegistry(mt.Coll)
		mt.AddMockResponses(mtest.CreateSuccessResponse(
			bson.E{Key: "n", Value: 2},
			bson.E{Key: "nModified", Value: 2},
		))

		n, err := r.DeactivateAccount(ctx, "acc-1", at)
		if err != nil || n != 2 {
			mt.Fatalf("DeactivateAccount: n=%d err=%v", n, err)
		}
	})

	mt.Run("purge", func(mt *mtest.T) {
		r := NewDeviceRegistry(mt.Coll)
		mt.AddMockResponses(mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 4}))

		n, err := r.PurgeInactive(ctx, at)
		if err != nil || n != 4 {
			mt.Fatalf("PurgeInactive: n=%d err=%v", n, err)
		}
	})

	mt.Run("command error", func(mt *mtest.T) {
		r := NewDeviceRegistry(mt.Coll)
		mt.AddMockResponses(mtest.CreateCommandErrorResponse(mtest.CommandError{
			Code:    2,
			Message: "bad value",
		}))

		if _, err := r.UpdateSettings(ctx, "acc-1", "d1", goEnroll.DeviceSettings{}); err == nil {
			mt.Fatalf("expected error")
		}
	})
}
