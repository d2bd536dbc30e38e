package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clubpulse/clubpulse-api/internal/models"
)

func ladderTemplates() []models.LevelTemplate {
	return []models.LevelTemplate{
		{
			Scope:       models.ScopeGlobal,
			LevelNumber: 2,
			Title:       "Regular",
			Missions: models.MissionTemplateList{
				{Type: models.MissionAttendEvent, Title: "Attend 5 events", Target: 5, Order: 1, Active: true},
				{Type: models.MissionUploadPhoto, Title: "Upload a photo", Target: 1, Order: 2, Active: true, RequiresApproval: true},
			},
			Reward: models.Reward{Type: models.RewardDrinkVoucher, Title: "Free drink"},
			Active: true,
		},
		{
			Scope:       models.ScopeGlobal,
			LevelNumber: 1,
			Title:       "Newcomer",
			Missions: models.MissionTemplateList{
				{Type: models.MissionScanQR, Title: "Scan the door code", Target: 2, Order: 2, Active: true},
				{Type: models.MissionAttendEvent, Title: "Attend an event", Target: 1, Order: 1, Active: true},
				{Type: models.MissionCollectStamps, Title: "Retired mission", Target: 3, Order: 3, Active: false},
			},
			Reward: models.Reward{Type: models.RewardBadge, Title: "Newcomer badge"},
			Active: true,
		},
	}
}

func TestMissionKey(t *testing.T) {
	assert.Equal(t, "L3_scan_qr_1", MissionKey(3, models.MissionScanQR, 1))
	assert.Equal(t, "L1_attend_event_2", MissionKey(1, models.MissionAttendEvent, 2))
}

func TestMissionRatio(t *testing.T) {
	assert.Equal(t, 0.5, MissionRatio(models.MissionProgress{Current: 1, Target: 2}))
	assert.Equal(t, 1.0, MissionRatio(models.MissionProgress{Current: 7, Target: 5}))
	assert.Equal(t, 0.0, MissionRatio(models.MissionProgress{Current: 3, Target: 0}))
	assert.Equal(t, 0.0, MissionRatio(models.MissionProgress{Current: 3, Target: -1}))
}

func TestLevelRatioIsMeanOfMissions(t *testing.T) {
	level := models.LevelProgress{Missions: []models.MissionProgress{
		{Current: 1, Target: 2},
		{Current: 1, Target: 1},
	}}
	assert.InDelta(t, 0.75, LevelRatio(level), 1e-9)
}

func TestLevelRatioEmptyLevel(t *testing.T) {
	assert.Equal(t, 0.0, LevelRatio(models.LevelProgress{}))
}

func TestLevelRatioKeepsRejectedAtLastRatio(t *testing.T) {
	level := models.LevelProgress{Missions: []models.MissionProgress{
		{Current: 1, Target: 1, Status: models.MissionCompleted},
		{Current: 0, Target: 1, Status: models.MissionRejected},
	}}
	assert.InDelta(t, 0.5, LevelRatio(level), 1e-9)
}

func TestBuildFromTemplates(t *testing.T) {
	now := time.Now().UTC()
	levels, rewardTitle := BuildFromTemplates(ladderTemplates(), 1, now)

	require.Len(t, levels, 2)
	assert.Equal(t, "Newcomer badge", rewardTitle)

	first := levels[0]
	assert.Equal(t, 1, first.LevelNumber)
	assert.Equal(t, models.LevelInProgress, first.Status)
	// Inactive mission filtered, remainder in order.
	require.Len(t, first.Missions, 2)
	assert.Equal(t, "L1_attend_event_1", first.Missions[0].MissionKey)
	assert.Equal(t, "L1_scan_qr_2", first.Missions[1].MissionKey)
	for _, m := range first.Missions {
		assert.Equal(t, models.MissionInProgress, m.Status)
		require.NotNil(t, m.StartedAt)
	}

	second := levels[1]
	assert.Equal(t, 2, second.LevelNumber)
	assert.Equal(t, models.LevelLocked, second.Status)
	for _, m := range second.Missions {
		assert.Equal(t, models.MissionLocked, m.Status)
		assert.Nil(t, m.StartedAt)
	}
	assert.True(t, second.Missions[1].RequiresApproval)
}

func TestAdvanceMission(t *testing.T) {
	now := time.Now().UTC()

	mission := models.MissionProgress{Status: models.MissionInProgress, Current: 0, Target: 2}
	assert.True(t, AdvanceMission(&mission, 1, now))
	assert.Equal(t, int64(1), mission.Current)
	assert.Equal(t, models.MissionInProgress, mission.Status)

	assert.True(t, AdvanceMission(&mission, 5, now))
	assert.Equal(t, int64(2), mission.Current)
	assert.Equal(t, models.MissionCompleted, mission.Status)
	require.NotNil(t, mission.CompletedAt)

	// Terminal missions do not move again.
	assert.False(t, AdvanceMission(&mission, 1, now))
	assert.Equal(t, int64(2), mission.Current)

	locked := models.MissionProgress{Status: models.MissionLocked, Target: 2}
	assert.False(t, AdvanceMission(&locked, 1, now))
	assert.Equal(t, int64(0), locked.Current)

	open := models.MissionProgress{Status: models.MissionInProgress, Target: 2}
	assert.False(t, AdvanceMission(&open, 0, now))
}

func TestCompleteLevelIfDone(t *testing.T) {
	now := time.Now().UTC()
	level := models.LevelProgress{
		Status: models.LevelInProgress,
		Missions: []models.MissionProgress{
			{Current: 1, Target: 1, Status: models.MissionCompleted},
			{Current: 1, Target: 2, Status: models.MissionInProgress},
		},
	}
	assert.False(t, CompleteLevelIfDone(&level, now))
	assert.Equal(t, models.LevelInProgress, level.Status)
	assert.InDelta(t, 0.75, level.Progress, 1e-9)

	level.Missions[1].Current = 2
	assert.True(t, CompleteLevelIfDone(&level, now))
	assert.Equal(t, models.LevelCompleted, level.Status)
	require.NotNil(t, level.CompletedAt)

	// Already completed levels report false.
	assert.False(t, CompleteLevelIfDone(&level, now))
}

func TestUnlockNextLevel(t *testing.T) {
	now := time.Now().UTC()
	levels, _ := BuildFromTemplates(ladderTemplates(), 1, now)
	progress := &models.PromotionProgress{CurrentLevel: 1, Levels: levels}

	UnlockNextLevel(progress, 1, now)
	assert.Equal(t, 2, progress.CurrentLevel)
	assert.Equal(t, "Free drink", progress.CurrentRewardTitle)

	next := progress.Levels[1]
	assert.Equal(t, models.LevelInProgress, next.Status)
	for _, m := range next.Missions {
		assert.Equal(t, models.MissionInProgress, m.Status)
		require.NotNil(t, m.StartedAt)
	}

	// Unlocking again for a level that is already in progress keeps the
	// mission timestamps but still re-points the level counter.
	started := make([]time.Time, len(next.Missions))
	for i, m := range next.Missions {
		started[i] = *m.StartedAt
	}
	progress.CurrentLevel = 1
	UnlockNextLevel(progress, 1, now.Add(time.Hour))
	assert.Equal(t, 2, progress.CurrentLevel)
	assert.Equal(t, "Free drink", progress.CurrentRewardTitle)
	for i, m := range progress.Levels[1].Missions {
		assert.Equal(t, models.MissionInProgress, m.Status)
		assert.Equal(t, started[i], *m.StartedAt)
	}
}

func TestUnlockNextLevelAtTopIsNoop(t *testing.T) {
	now := time.Now().UTC()
	levels, _ := BuildFromTemplates(ladderTemplates(), 1, now)
	progress := &models.PromotionProgress{CurrentLevel: 2, Levels: levels}

	UnlockNextLevel(progress, 2, now)
	assert.Equal(t, 2, progress.CurrentLevel)
}

func TestRefreshSnapshot(t *testing.T) {
	now := time.Now().UTC()
	levels, _ := BuildFromTemplates(ladderTemplates(), 1, now)
	progress := &models.PromotionProgress{CurrentLevel: 1, Levels: levels}

	progress.Levels[0].Missions[0].Current = 1 // target 1
	RefreshSnapshot(progress)
	assert.InDelta(t, 0.5, progress.CurrentProgress, 1e-9)
	assert.Equal(t, "Newcomer badge", progress.CurrentRewardTitle)
}

func TestRefreshSnapshotStalePointer(t *testing.T) {
	progress := &models.PromotionProgress{
		CurrentLevel:       9,
		CurrentProgress:    0.4,
		CurrentRewardTitle: "kept",
	}
	RefreshSnapshot(progress)
	assert.Equal(t, 0.0, progress.CurrentProgress)
	assert.Equal(t, "kept", progress.CurrentRewardTitle)
}
