package repository

import (
	"context"
	"regexp"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/pre-enrollment-api/internal/models"
)

func TestSeatHolderCountTracksSharedStatuses(t *testing.T) {
	for _, status := range models.SeatHoldingStatuses {
		require.Contains(t, seatHolderCount, "'"+string(status)+"'")
	}
	require.NotContains(t, seatHolderCount, string(models.StatusWaitlist))
	require.NotContains(t, seatHolderCount, string(models.StatusRejected))
}

func TestClassRepositoryListByLevelDerivesOccupancy(t *testing.T) {
	db, mock, cleanup := newEnrollmentRepoMock(t)
	defer cleanup()
	repo := NewClassRepository(db)

	rows := sqlmock.NewRows([]string{"id", "code", "name", "max_capacity", "subject_name", "subject_type", "occupied"}).
		AddRow("class-1", "RED-NOITE", "Redação Noturno", 30, "Redação", "REDACAO", 27)
	occupancy := "WHERE e.class_id = c.id AND e.status IN (" + statusInList(models.SeatHoldingStatuses) + "))"
	mock.ExpectQuery(regexp.QuoteMeta(occupancy)).
		WithArgs(models.LevelHighSchool).
		WillReturnRows(rows)

	classes, err := repo.ListByLevel(context.Background(), models.LevelHighSchool)
	require.NoError(t, err)
	require.Len(t, classes, 1)
	require.Equal(t, 27, classes[0].Occupied)
	require.NoError(t, mock.ExpectationsWereMet())
}
