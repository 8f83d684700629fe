package db

import (
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"gorm.io/gorm"
)

const (
	seedHumans     = 12
	seedBotBase    = 100
	seedBots       = 3
	seedBotBursts  = 24
	seedBotBurst   = 3
	seedBotSpacing = 2 * time.Second
)

// SeedTestData resets the database and populates it with a demo swipe history.
//
// Behavior:
//  1. Clears every table owned by the service.
//  2. Users 1..12 swipe on each other at irregular, human-like intervals
//     over the last three days with ~55% likes. Mutual likes become matches.
//  3. Users 101..103 like everyone they see in hourly bursts of three swipes
//     2s apart, around the clock and with no device info. The bot heuristics
//     flag them.
//  4. Daily counters are derived from the seeded swipes.
//
// Behavior stats are left to the recalculator.
func SeedTestData(gdb *gorm.DB, now time.Time, log *slog.Logger) error {
	r := rand.New(rand.NewSource(now.UnixNano()))
	now = now.UTC()

	if err := reset(gdb); err != nil {
		return err
	}
	log.Info("cleared existing data")

	var swipes []Swipe
	devices := []string{"ios-17", "android-14", "web"}
	for user := uint64(1); user <= seedHumans; user++ {
		at := now.Add(-72 * time.Hour).Add(time.Duration(r.Intn(3600)) * time.Second)
		device := devices[r.Intn(len(devices))]
		for _, idx := range r.Perm(seedHumans)[:8] {
			target := uint64(idx + 1)
			if target == user {
				continue
			}
			at = at.Add(time.Duration(30+r.Intn(1200)) * time.Second)
			swipes = append(swipes, Swipe{
				UserID:       user,
				TargetUserID: target,
				IsLike:       r.Intn(100) < 55,
				CreatedAt:    at,
				DeviceInfo:   &device,
			})
		}
	}
	for b := uint64(1); b <= seedBots; b++ {
		bot := seedBotBase + b
		start := now.Add(-seedBotBursts * time.Hour)
		target := uint64(1000)
		for h := 0; h < seedBotBursts; h++ {
			for k := 0; k < seedBotBurst; k++ {
				target++
				swipes = append(swipes, Swipe{
					UserID:       bot,
					TargetUserID: target,
					IsLike:       true,
					CreatedAt:    start.Add(time.Duration(h)*time.Hour + time.Duration(k)*seedBotSpacing),
				})
			}
		}
	}

	return gdb.Transaction(func(tx *gorm.DB) error {
		if err := tx.CreateInBatches(&swipes, 100).Error; err != nil {
			return fmt.Errorf("failed to seed swipes: %w", err)
		}
		matches, err := seedMatches(tx, swipes)
		if err != nil {
			return err
		}
		counters, err := seedCounters(tx, swipes)
		if err != nil {
			return err
		}
		log.Info("seeded demo data", "swipes", len(swipes), "matches", matches, "counters", counters)
		return nil
	})
}

// SeedMinimalTestData inserts a small deterministic dataset:
//   - 1 ↔ 2 like each other and are matched
//   - 3 → 1 like, not returned
//   - 1 → 3 pass
func SeedMinimalTestData(gdb *gorm.DB, now time.Time) error {
	if err := reset(gdb); err != nil {
		return err
	}
	now = now.UTC()

	swipes := []Swipe{
		{UserID: 1, TargetUserID: 2, IsLike: true, CreatedAt: now.Add(-4 * time.Minute)},
		{UserID: 2, TargetUserID: 1, IsLike: true, CreatedAt: now.Add(-3 * time.Minute)},
		{UserID: 3, TargetUserID: 1, IsLike: true, CreatedAt: now.Add(-2 * time.Minute)},
		{UserID: 1, TargetUserID: 3, IsLike: false, CreatedAt: now.Add(-time.Minute)},
	}
	return gdb.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&swipes).Error; err != nil {
			return err
		}
		if _, err := seedMatches(tx, swipes); err != nil {
			return err
		}
		_, err := seedCounters(tx, swipes)
		return err
	})
}

func reset(gdb *gorm.DB) error {
	tables := []string{"match_notifications", "matches", "daily_limit_counters", "behavior_stats", "swipes"}
	for _, t := range tables {
		if err := gdb.Exec("DELETE FROM " + t).Error; err != nil {
			return fmt.Errorf("failed to clear %s: %w", t, err)
		}
	}

	// Reset auto-increment sequences
	switch gdb.Dialector.Name() {
	case "mysql":
		for _, t := range tables {
			gdb.Exec("ALTER TABLE " + t + " AUTO_INCREMENT = 1")
		}
	case "sqlite":
		for _, t := range tables {
			gdb.Exec("DELETE FROM sqlite_sequence WHERE name = ?", t)
		}
	}
	return nil
}

// seedMatches creates a match for every mutual like and links both swipes.
func seedMatches(tx *gorm.DB, swipes []Swipe) (int, error) {
	type pair struct{ a, b uint64 }
	likes := make(map[pair]*Swipe)
	for i := range swipes {
		if swipes[i].IsLike {
			likes[pair{swipes[i].UserID, swipes[i].TargetUserID}] = &swipes[i]
		}
	}

	n := 0
	for p, s := range likes {
		back, ok := likes[pair{p.b, p.a}]
		if !ok || p.a > p.b {
			continue
		}
		created := s.CreatedAt
		if back.CreatedAt.After(created) {
			created = back.CreatedAt
		}
		m := Match{User1ID: p.a, User2ID: p.b, CreatedAt: created, IsActive: true}
		if err := tx.Create(&m).Error; err != nil {
			return n, fmt.Errorf("failed to seed match: %w", err)
		}
		if err := tx.Model(&Swipe{}).Where("id IN ?", []uint64{s.ID, back.ID}).Update("match_id", m.ID).Error; err != nil {
			return n, fmt.Errorf("failed to link match: %w", err)
		}
		n++
	}
	return n, nil
}

// seedCounters derives per-day quota counters from the seeded swipes.
func seedCounters(tx *gorm.DB, swipes []Swipe) (int, error) {
	type key struct {
		user uint64
		day  string
	}
	byDay := make(map[key]*DailyLimitCounter)
	var order []key
	for _, s := range swipes {
		k := key{s.UserID, s.CreatedAt.UTC().Format(time.DateOnly)}
		c, ok := byDay[k]
		if !ok {
			c = &DailyLimitCounter{UserID: k.user, Day: k.day}
			byDay[k] = c
			order = append(order, k)
		}
		c.SwipeCount++
		if s.IsLike {
			c.LikeCount++
		}
		if s.CreatedAt.After(c.LastSwipeAt) {
			c.LastSwipeAt = s.CreatedAt
		}
	}

	counters := make([]DailyLimitCounter, 0, len(order))
	for _, k := range order {
		counters = append(counters, *byDay[k])
	}
	if len(counters) == 0 {
		return 0, nil
	}
	if err := tx.CreateInBatches(&counters, 100).Error; err != nil {
		return 0, fmt.Errorf("failed to seed counters: %w", err)
	}
	return len(counters), nil
}
