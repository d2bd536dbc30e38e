package repository

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/require"

	"github.com/clubpulse/clubpulse-api/internal/models"
	appErrors "github.com/clubpulse/clubpulse-api/pkg/errors"
)

func sampleClaim() *models.PromotionClaim {
	return &models.PromotionClaim{
		UserID:      "u1",
		ClubID:      "c1",
		LevelNumber: 3,
		MissionType: models.MissionUploadPhoto,
		MissionKey:  "L3_upload_photo_2",
		Evidence: models.EvidenceList{
			{Type: models.EvidencePhoto, URL: "https://cdn.clubpulse.app/p/1.jpg"},
		},
	}
}

func TestClaimRepositoryCreate(t *testing.T) {
	db, mock, cleanup := newProgressRepoMock(t)
	defer cleanup()

	repo := NewClaimRepository(db)
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO promotion_claims")).
		WillReturnResult(sqlmock.NewResult(1, 1))

	claim := sampleClaim()
	require.NoError(t, repo.Create(context.Background(), claim))
	require.NotEmpty(t, claim.ID)
	require.Equal(t, models.ClaimPending, claim.Status)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestClaimRepositoryCreateDuplicatePending(t *testing.T) {
	db, mock, cleanup := newProgressRepoMock(t)
	defer cleanup()

	repo := NewClaimRepository(db)
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO promotion_claims")).
		WillReturnError(&pq.Error{Code: "23505"})

	err := repo.Create(context.Background(), sampleClaim())
	require.True(t, errors.Is(err, appErrors.ErrDuplicateClaim))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestClaimRepositoryResolveGuardsTerminalStates(t *testing.T) {
	db, mock, cleanup := newProgressRepoMock(t)
	defer cleanup()

	repo := NewClaimRepository(db)
	reviewer := "manager-1"
	now := time.Now().UTC()
	claim := sampleClaim()
	claim.ID = "claim-1"
	claim.Status = models.ClaimApproved
	claim.ReviewedBy = &reviewer
	claim.ReviewedAt = &now

	mock.ExpectExec(regexp.QuoteMeta("UPDATE promotion_claims SET")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, repo.Resolve(context.Background(), claim))

	// Second resolution of the same claim matches zero rows.
	mock.ExpectExec(regexp.QuoteMeta("UPDATE promotion_claims SET")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	err := repo.Resolve(context.Background(), claim)
	require.True(t, errors.Is(err, appErrors.ErrClaimResolved))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestClaimRepositoryCountPending(t *testing.T) {
	db, mock, cleanup := newProgressRepoMock(t)
	defer cleanup()

	repo := NewClaimRepository(db)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM promotion_claims")).
		WithArgs("u1", "c1", "pending").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))

	count, err := repo.CountPending(context.Background(), "u1", "c1")
	require.NoError(t, err)
	require.Equal(t, 2, count)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestClaimRepositoryListFilters(t *testing.T) {
	db, mock, cleanup := newProgressRepoMock(t)
	defer cleanup()

	repo := NewClaimRepository(db)
	rows := sqlmock.NewRows([]string{"id", "user_id", "club_id", "event_id", "level_number", "mission_type", "mission_key", "status", "evidence", "user_note", "reviewed_by", "reviewed_at", "review_note", "reward_granted", "reward_granted_at", "ip_address", "user_agent", "created_at", "updated_at"}).
		AddRow("claim-1", "u1", "c1", nil, 3, "upload_photo", "L3_upload_photo_2", "pending", "[]", "", nil, nil, "", false, nil, "", "", time.Now(), time.Now())
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, user_id, club_id")).
		WithArgs("u1", "pending").
		WillReturnRows(rows)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM promotion_claims")).
		WithArgs("u1", "pending").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	claims, total, err := repo.List(context.Background(), models.ClaimFilter{UserID: "u1", Status: models.ClaimPending})
	require.NoError(t, err)
	require.Len(t, claims, 1)
	require.Equal(t, 1, total)
	require.Equal(t, "claim-1", claims[0].ID)
	require.NoError(t, mock.ExpectationsWereMet())
}
