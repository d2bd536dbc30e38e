package service

import (
	"fmt"
	"sort"
	"time"

	"github.com/clubpulse/clubpulse-api/internal/models"
)

// RejectedMissionPolicy selects how rejected missions weigh into a
// level's completion average.
type RejectedMissionPolicy int

const (
	// RejectedCountsAtLastRatio keeps a rejected mission in the average
	// at its last current/target ratio. The level stays capped below 1.0
	// until the mission is resubmitted and approved.
	RejectedCountsAtLastRatio RejectedMissionPolicy = iota
	// RejectedExcludedFromAverage drops rejected missions from the mean,
	// treating rejection as "not yet satisfied".
	RejectedExcludedFromAverage
)

// ActiveRejectedMissionPolicy is the policy in force for level averages.
const ActiveRejectedMissionPolicy = RejectedCountsAtLastRatio

// MissionKey derives the stable identifier of a materialized mission.
// Level number is the disambiguator: the same type+order may repeat in
// other levels.
func MissionKey(levelNumber int, missionType models.MissionType, order int) string {
	return fmt.Sprintf("L%d_%s_%d", levelNumber, missionType, order)
}

// MissionRatio returns the completion ratio of a mission in [0,1].
// A non-positive target yields 0; targets are validated to be >=1 at
// the boundary, so this is pure defence against corrupt rows.
func MissionRatio(m models.MissionProgress) float64 {
	if m.Target <= 0 {
		return 0
	}
	ratio := float64(m.Current) / float64(m.Target)
	return clamp01(ratio)
}

// LevelRatio returns the mean mission ratio of a level in [0,1].
// Missions are equally weighted; an empty mission list yields 0.
func LevelRatio(l models.LevelProgress) float64 {
	var sum float64
	var counted int
	for _, m := range l.Missions {
		if m.Status == models.MissionRejected && ActiveRejectedMissionPolicy == RejectedExcludedFromAverage {
			continue
		}
		sum += MissionRatio(m)
		counted++
	}
	if counted == 0 {
		return 0
	}
	return clamp01(sum / float64(counted))
}

// BuildFromTemplates materializes the mutable per-user level array from
// an ordered template set. The start level and its missions open as
// in_progress; everything later stays locked until unlocked. Returns
// the levels plus the start level's reward title for the snapshot.
func BuildFromTemplates(templates []models.LevelTemplate, startLevel int, now time.Time) (models.LevelProgressList, string) {
	sorted := make([]models.LevelTemplate, len(templates))
	copy(sorted, templates)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].LevelNumber < sorted[j].LevelNumber })

	levels := make(models.LevelProgressList, 0, len(sorted))
	rewardTitle := ""
	for _, tpl := range sorted {
		levelStatus := models.LevelLocked
		missionStatus := models.MissionLocked
		if tpl.LevelNumber == startLevel {
			levelStatus = models.LevelInProgress
			missionStatus = models.MissionInProgress
			rewardTitle = tpl.Reward.Title
		}

		missions := make([]models.MissionTemplate, 0, len(tpl.Missions))
		for _, m := range tpl.Missions {
			if m.Active {
				missions = append(missions, m)
			}
		}
		sort.Slice(missions, func(i, j int) bool { return missions[i].Order < missions[j].Order })

		progress := make([]models.MissionProgress, 0, len(missions))
		for _, m := range missions {
			mp := models.MissionProgress{
				MissionKey:       MissionKey(tpl.LevelNumber, m.Type, m.Order),
				Type:             m.Type,
				Title:            m.Title,
				Status:           missionStatus,
				Current:          0,
				Target:           m.Target,
				RequiresApproval: m.RequiresApproval,
				Meta:             m.Params,
			}
			if tpl.LevelNumber == startLevel {
				started := now
				mp.StartedAt = &started
			}
			progress = append(progress, mp)
		}

		levels = append(levels, models.LevelProgress{
			LevelNumber: tpl.LevelNumber,
			Title:       tpl.Title,
			Description: tpl.Description,
			Status:      levelStatus,
			Missions:    progress,
			Reward:      tpl.Reward,
			Progress:    0,
		})
	}
	return levels, rewardTitle
}

// UnlockNextLevel opens the level after completedLevel. Reaching the top
// of the ladder is a no-op. The current-level pointer always advances to
// the next level when it exists, even if that level was already open;
// it never moves backward.
func UnlockNextLevel(p *models.PromotionProgress, completedLevel int, now time.Time) {
	next := completedLevel + 1
	level := findLevel(p, next)
	if level == nil {
		return
	}

	if level.Status == models.LevelLocked {
		level.Status = models.LevelInProgress
		for i := range level.Missions {
			m := &level.Missions[i]
			if m.Status != models.MissionLocked {
				continue
			}
			m.Status = models.MissionInProgress
			if m.StartedAt == nil {
				started := now
				m.StartedAt = &started
			}
			updated := now
			m.UpdatedAt = &updated
		}
	}

	p.CurrentLevel = next
	p.CurrentRewardTitle = level.Reward.Title
}

// RefreshSnapshot recomputes the cached current_progress and
// current_reward_title from the level the current-level pointer names.
// A stale pointer (no matching level) degrades to zero progress and
// leaves the reward title untouched.
func RefreshSnapshot(p *models.PromotionProgress) {
	level := findLevel(p, p.CurrentLevel)
	if level == nil {
		p.CurrentProgress = 0
		return
	}
	level.Progress = LevelRatio(*level)
	p.CurrentProgress = level.Progress
	p.CurrentRewardTitle = level.Reward.Title
}

// AdvanceMission bumps a mission's counter by delta and completes it
// once the target is reached. Locked and terminal missions are left
// alone. Reports whether anything changed.
func AdvanceMission(m *models.MissionProgress, delta int64, now time.Time) bool {
	if delta <= 0 {
		return false
	}
	switch m.Status {
	case models.MissionInProgress, models.MissionApproved:
	default:
		return false
	}

	m.Current += delta
	if m.Current > m.Target {
		m.Current = m.Target
	}
	updated := now
	m.UpdatedAt = &updated
	if m.Current >= m.Target {
		m.Status = models.MissionCompleted
		completed := now
		m.CompletedAt = &completed
	}
	return true
}

// CompleteLevelIfDone marks the level completed when its ratio reaches
// 1.0 and reports whether it did.
func CompleteLevelIfDone(level *models.LevelProgress, now time.Time) bool {
	if level.Status == models.LevelCompleted {
		return false
	}
	level.Progress = LevelRatio(*level)
	if level.Progress < 1 {
		return false
	}
	level.Status = models.LevelCompleted
	completed := now
	level.CompletedAt = &completed
	return true
}

func findLevel(p *models.PromotionProgress, number int) *models.LevelProgress {
	for i := range p.Levels {
		if p.Levels[i].LevelNumber == number {
			return &p.Levels[i]
		}
	}
	return nil
}

func findMission(level *models.LevelProgress, missionKey string) *models.MissionProgress {
	for i := range level.Missions {
		if level.Missions[i].MissionKey == missionKey {
			return &level.Missions[i]
		}
	}
	return nil
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
