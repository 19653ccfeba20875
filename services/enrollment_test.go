package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/otabeknarz/11tutors-backend/models"
)

func TestGrantSkipsExisting(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	r := f.enrollments.Grant(ctx, nil, f.student.ID, []string{f.courseA.ID})
	assert.Equal(t, []string{f.courseA.ID}, r.Granted)

	r = f.enrollments.Grant(ctx, nil, f.student.ID, []string{f.courseA.ID, f.courseB.ID})
	assert.Equal(t, []string{f.courseB.ID}, r.Granted)
	assert.Equal(t, []string{f.courseA.ID}, r.Skipped)
	assert.False(t, r.HasFailures())
	assert.EqualValues(t, 2, f.count(t, &models.Enrollment{}, ""))
}

func TestGrantContinuesAfterFailure(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// внешний ключ на несуществующий курс падает, остальные курсы выдаются
	err := f.db.Transaction(func(tx *gorm.DB) error {
		r := f.enrollments.Grant(ctx, tx, f.student.ID, []string{f.courseA.ID, "missing-course", f.courseB.ID})
		assert.ElementsMatch(t, []string{f.courseA.ID, f.courseB.ID}, r.Granted)
		assert.Contains(t, r.Failed, "missing-course")
		assert.True(t, r.HasFailures())
		return nil
	})
	require.NoError(t, err)
	assert.EqualValues(t, 2, f.count(t, &models.Enrollment{}, ""))
}

func TestEnrolledCourseIDsAndList(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.enrollments.Grant(ctx, nil, f.student.ID, []string{f.courseB.ID})

	enrolled, err := f.enrollments.EnrolledCourseIDs(ctx, nil, f.student.ID, []string{f.courseA.ID, f.courseB.ID})
	require.NoError(t, err)
	assert.False(t, enrolled[f.courseA.ID])
	assert.True(t, enrolled[f.courseB.ID])

	list, err := f.enrollments.ListForStudent(ctx, f.student.ID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "Physics", list[0].Course.Title)
}
