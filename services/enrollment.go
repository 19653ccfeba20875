package services

import (
	"context"
	"fmt"

	"github.com/otabeknarz/11tutors-backend/models"
	"github.com/otabeknarz/11tutors-backend/utils"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GrantReport - итог выдачи доступа по списку курсов
type GrantReport struct {
	StudentID string            `json:"student_id"`
	Granted   []string          `json:"granted"`
	Skipped   []string          `json:"skipped"`
	Failed    map[string]string `json:"failed,omitempty"`
}

func (r *GrantReport) HasFailures() bool {
	return r != nil && len(r.Failed) > 0
}

// EnrollmentGranter выдает доступ к курсам внутри переданной транзакции
type EnrollmentGranter interface {
	Grant(ctx context.Context, tx *gorm.DB, studentID string, courseIDs []string) *GrantReport
}

type EnrollmentService struct {
	db *gorm.DB
}

func NewEnrollmentService(db *gorm.DB) *EnrollmentService {
	return &EnrollmentService{db: db}
}

// Grant создает Enrollment для каждой пары (студент, курс), которой еще нет.
// Каждый курс пишется в своем savepoint: ошибка по одному курсу не откатывает остальные.
func (s *EnrollmentService) Grant(ctx context.Context, tx *gorm.DB, studentID string, courseIDs []string) *GrantReport {
	if tx == nil {
		tx = s.db
	}
	report := &GrantReport{StudentID: studentID, Failed: map[string]string{}}

	for _, courseID := range courseIDs {
		var inserted bool
		err := tx.WithContext(ctx).Transaction(func(sp *gorm.DB) error {
			res := sp.Clauses(clause.OnConflict{DoNothing: true}).
				Create(&models.Enrollment{StudentID: studentID, CourseID: courseID})
			if res.Error != nil {
				return res.Error
			}
			inserted = res.RowsAffected > 0
			return nil
		})
		switch {
		case err != nil:
			report.Failed[courseID] = err.Error()
			utils.LogError(err, fmt.Sprintf("Grant enrollment student=%s course=%s", studentID, courseID))
		case inserted:
			report.Granted = append(report.Granted, courseID)
		default:
			report.Skipped = append(report.Skipped, courseID)
		}
	}
	return report
}

// EnrolledCourseIDs - какие из курсов уже доступны студенту
func (s *EnrollmentService) EnrolledCourseIDs(ctx context.Context, tx *gorm.DB, studentID string, courseIDs []string) (map[string]bool, error) {
	if tx == nil {
		tx = s.db
	}
	var ids []string
	err := tx.WithContext(ctx).Model(&models.Enrollment{}).
		Where("student_id = ? AND course_id IN ?", studentID, courseIDs).
		Pluck("course_id", &ids).Error
	if err != nil {
		return nil, err
	}
	enrolled := make(map[string]bool, len(ids))
	for _, id := range ids {
		enrolled[id] = true
	}
	return enrolled, nil
}

func (s *EnrollmentService) ListForStudent(ctx context.Context, studentID string) ([]models.Enrollment, error) {
	var enrollments []models.Enrollment
	err := s.db.WithContext(ctx).
		Preload("Course").
		Where("student_id = ?", studentID).
		Order("enrolled_at DESC").
		Find(&enrollments).Error
	return enrollments, err
}
