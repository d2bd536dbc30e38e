package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/require"

	"github.com/clubpulse/clubpulse-api/internal/models"
	appErrors "github.com/clubpulse/clubpulse-api/pkg/errors"
)

func sampleTemplate() *models.LevelTemplate {
	return &models.LevelTemplate{
		Scope:       models.ScopeGlobal,
		LevelNumber: 2,
		Title:       "Insider",
		Description: "Second step of the ladder",
		Missions: models.MissionTemplateList{
			{Type: models.MissionAttendEvent, Title: "Attend 3 events", Target: 3, Order: 1, Active: true},
		},
		Reward: models.Reward{Type: models.RewardDrinkVoucher, Title: "Free drink", ValueText: "1"},
	}
}

func TestTemplateRepositoryCreate(t *testing.T) {
	db, mock, cleanup := newProgressRepoMock(t)
	defer cleanup()

	repo := NewTemplateRepository(db)
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO promotion_level_templates")).
		WillReturnResult(sqlmock.NewResult(0, 1))

	template := sampleTemplate()
	require.NoError(t, repo.Create(context.Background(), template))
	require.NotEmpty(t, template.ID)
	require.Equal(t, 1, template.Version)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTemplateRepositoryCreateDuplicateActiveLevel(t *testing.T) {
	db, mock, cleanup := newProgressRepoMock(t)
	defer cleanup()

	repo := NewTemplateRepository(db)
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO promotion_level_templates")).
		WillReturnError(&pq.Error{Code: "23505"})

	err := repo.Create(context.Background(), sampleTemplate())
	require.Error(t, err)
	require.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTemplateRepositoryFindByIDScansReward(t *testing.T) {
	db, mock, cleanup := newProgressRepoMock(t)
	defer cleanup()

	repo := NewTemplateRepository(db)
	reward := models.Reward{Type: models.RewardVIPTable, Title: "VIP table night", ValueText: "2"}
	rewardJSON, err := reward.Value()
	require.NoError(t, err)
	require.Contains(t, string(rewardJSON.([]byte)), `"value":"2"`)

	now := time.Now().UTC()
	rows := sqlmock.NewRows([]string{
		"id", "scope", "club_id", "level_number", "title", "description",
		"missions", "reward", "active", "version", "created_at", "updated_at",
	}).AddRow("tpl-1", "global", nil, 3, "Regular", "Third step", []byte(`[]`), rewardJSON, true, 1, now, now)
	mock.ExpectQuery(regexp.QuoteMeta("FROM promotion_level_templates WHERE id = $1")).
		WithArgs("tpl-1").
		WillReturnRows(rows)

	template, err := repo.FindByID(context.Background(), "tpl-1")
	require.NoError(t, err)
	require.Equal(t, models.RewardVIPTable, template.Reward.Type)
	require.Equal(t, "2", template.Reward.ValueText)
	require.NoError(t, mock.ExpectationsWereMet())
}
