package session

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/MrEthical07/campusAuth/model"
)

func TestTwoFactorStoreRoundTrip(t *testing.T) {
	_, rdb := newRedisTest(t)
	s := NewTwoFactorStore(rdb, "t")
	ctx := context.Background()

	if _, err := s.FindByUserID(ctx, "u1"); !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	in := &model.TwoFactorRecord{
		UserID:      "u1",
		Secret:      "JBSWY3DPEHPK3PXP",
		Enrolled:    true,
		BackupCodes: []string{"BBBBBBBB", "AAAAAAAA"},
		UpdatedAt:   time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
	}
	if err := s.Save(ctx, in); err != nil {
		t.Fatalf("save: %v", err)
	}

	got, err := s.FindByUserID(ctx, "u1")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if got.Secret != in.Secret || !got.Enrolled || got.Enabled {
		t.Fatalf("unexpected record: %+v", got)
	}
	if len(got.BackupCodes) != 2 || got.BackupCodes[0] != "AAAAAAAA" {
		t.Fatalf("unexpected codes: %v", got.BackupCodes)
	}
	if !got.UpdatedAt.Equal(in.UpdatedAt) {
		t.Fatalf("unexpected updatedAt: %v", got.UpdatedAt)
	}

	// Saving a regenerated set replaces the old one entirely.
	got.BackupCodes = []string{"CCCCCCCC"}
	got.Enabled = true
	if err := s.Save(ctx, got); err != nil {
		t.Fatalf("save: %v", err)
	}
	again, err := s.FindByUserID(ctx, "u1")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if !again.Enabled || len(again.BackupCodes) != 1 || again.BackupCodes[0] != "CCCCCCCC" {
		t.Fatalf("unexpected record after regenerate: %+v", again)
	}
}

func TestTwoFactorStoreConsumeOnce(t *testing.T) {
	_, rdb := newRedisTest(t)
	s := NewTwoFactorStore(rdb, "t")
	ctx := context.Background()

	if err := s.Save(ctx, &model.TwoFactorRecord{
		UserID:      "u1",
		Secret:      "JBSWY3DPEHPK3PXP",
		Enrolled:    true,
		Enabled:     true,
		BackupCodes: []string{"AAAAAAAA", "BBBBBBBB"},
	}); err != nil {
		t.Fatalf("save: %v", err)
	}

	var (
		wg    sync.WaitGroup
		wins  atomic.Int32
		start = make(chan struct{})
	)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			ok, err := s.ConsumeBackupCode(ctx, "u1", "AAAAAAAA")
			if err != nil {
				t.Errorf("consume: %v", err)
				return
			}
			if ok {
				wins.Add(1)
			}
		}()
	}
	close(start)
	wg.Wait()

	if wins.Load() != 1 {
		t.Fatalf("expected a single successful consume, got %d", wins.Load())
	}

	rec, err := s.FindByUserID(ctx, "u1")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if len(rec.BackupCodes) != 1 || rec.BackupCodes[0] != "BBBBBBBB" {
		t.Fatalf("unexpected remaining codes: %v", rec.BackupCodes)
	}

	if ok, _ := s.ConsumeBackupCode(ctx, "u1", "bbbbbbbb"); ok {
		t.Fatalf("backup codes are case sensitive")
	}
	if ok, _ := s.ConsumeBackupCode(ctx, "u1", ""); ok {
		t.Fatalf("empty code must not consume")
	}
}

func TestTwoFactorStoreFlagUpdatesLeaveCodes(t *testing.T) {
	_, rdb := newRedisTest(t)
	s := NewTwoFactorStore(rdb, "t")
	ctx := context.Background()
	at := time.Date(2024, 3, 2, 0, 0, 0, 0, time.UTC)

	if err := s.SetFlags(ctx, "u1", true, true, at); !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for missing record, got %v", err)
	}
	if err := s.ReplaceBackupCodes(ctx, "u1", []string{"CCCCCCCC"}, at); !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for missing record, got %v", err)
	}

	if err := s.Save(ctx, &model.TwoFactorRecord{
		UserID:      "u1",
		Secret:      "JBSWY3DPEHPK3PXP",
		Enrolled:    true,
		Enabled:     true,
		BackupCodes: []string{"AAAAAAAA", "BBBBBBBB"},
	}); err != nil {
		t.Fatalf("save: %v", err)
	}

	if ok, err := s.ConsumeBackupCode(ctx, "u1", "AAAAAAAA"); err != nil || !ok {
		t.Fatalf("consume: ok=%v err=%v", ok, err)
	}
	if err := s.SetFlags(ctx, "u1", true, false, at); err != nil {
		t.Fatalf("set flags: %v", err)
	}
	if err := s.SetFlags(ctx, "u1", true, true, at); err != nil {
		t.Fatalf("set flags: %v", err)
	}

	got, err := s.FindByUserID(ctx, "u1")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if !got.Enabled || got.Secret != "JBSWY3DPEHPK3PXP" || !got.UpdatedAt.Equal(at) {
		t.Fatalf("unexpected record: %+v", got)
	}
	if len(got.BackupCodes) != 1 || got.BackupCodes[0] != "BBBBBBBB" {
		t.Fatalf("consumed code came back: %v", got.BackupCodes)
	}

	if err := s.ReplaceBackupCodes(ctx, "u1", []string{"CCCCCCCC"}, at); err != nil {
		t.Fatalf("replace: %v", err)
	}
	got, err = s.FindByUserID(ctx, "u1")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if !got.Enabled || len(got.BackupCodes) != 1 || got.BackupCodes[0] != "CCCCCCCC" {
		t.Fatalf("unexpected record after replace: %+v", got)
	}
}
