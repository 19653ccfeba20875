package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/otabeknarz/11tutors-backend/models"
	"github.com/otabeknarz/11tutors-backend/utils"

	"github.com/go-redis/redis/v8"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

const statsCacheTTL = 60 * time.Second

// TutorStats - сводка для кабинета преподавателя
type TutorStats struct {
	NumberOfPayments          int64           `json:"number_of_payments"`
	NumberOfCompletedPayments int64           `json:"number_of_completed_payments"`
	NumberOfFailedPayments    int64           `json:"number_of_failed_payments"`
	NumberOfPendingPayments   int64           `json:"number_of_pending_payments"`
	NumberOfRefundedPayments  int64           `json:"number_of_refunded_payments"`
	TotalCompletedAmount      decimal.Decimal `json:"total_amount_of_completed_payments"`
	AverageMonthlyAmount      decimal.Decimal `json:"average_monthly_amount_of_completed_payments"`
	NumberOfCourses           int64           `json:"number_of_courses"`
	NumberOfCourseParts       int64           `json:"number_of_course_parts"`
	NumberOfLessons           int64           `json:"number_of_lessons"`
	NumberOfStudents          int64           `json:"number_of_students"`
}

type StatsService struct {
	db  *gorm.DB
	rdb *redis.Client
}

func NewStatsService(db *gorm.DB, rdb *redis.Client) *StatsService {
	return &StatsService{db: db, rdb: rdb}
}

func statsCacheKey(tutorID string) string {
	return "stats:tutor:" + tutorID
}

// ForTutor считает статистику по курсам преподавателя; результат кешируется в redis на минуту
func (s *StatsService) ForTutor(ctx context.Context, tutorID string) (*TutorStats, error) {
	if s.rdb != nil {
		if cached, err := s.rdb.Get(ctx, statsCacheKey(tutorID)).Bytes(); err == nil {
			var st TutorStats
			if json.Unmarshal(cached, &st) == nil {
				return &st, nil
			}
		}
	}

	st, err := s.compute(ctx, tutorID)
	if err != nil {
		return nil, err
	}

	if s.rdb != nil {
		if b, err := json.Marshal(st); err == nil {
			if err := s.rdb.Set(ctx, statsCacheKey(tutorID), b, statsCacheTTL).Err(); err != nil {
				utils.LogError(err, "stats cache set")
			}
		}
	}
	return st, nil
}

func (s *StatsService) compute(ctx context.Context, tutorID string) (*TutorStats, error) {
	db := s.db.WithContext(ctx)
	courseIDs := db.Table("course_tutors").Select("course_id").Where("user_id = ?", tutorID)
	orderIDs := db.Table("order_courses").Select("order_id").Where("course_id IN (?)", courseIDs)
	payments := func() *gorm.DB {
		return db.Model(&models.Payment{}).Where("order_id IN (?)", orderIDs)
	}

	st := &TutorStats{}
	var rows []struct {
		Status models.PaymentStatus
		Count  int64
	}
	if err := payments().Select("status, COUNT(*) AS count").Group("status").Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("payment counts: %w", err)
	}
	for _, r := range rows {
		st.NumberOfPayments += r.Count
		switch r.Status {
		case models.PaymentStatusCompleted:
			st.NumberOfCompletedPayments = r.Count
		case models.PaymentStatusFailed:
			st.NumberOfFailedPayments = r.Count
		case models.PaymentStatusPending:
			st.NumberOfPendingPayments = r.Count
		case models.PaymentStatusRefunded:
			st.NumberOfRefundedPayments = r.Count
		}
	}

	var completed []models.Payment
	if err := payments().Select("amount, created_at").
		Where("status = ?", models.PaymentStatusCompleted).
		Order("created_at").Find(&completed).Error; err != nil {
		return nil, fmt.Errorf("completed payments: %w", err)
	}
	st.TotalCompletedAmount = decimal.Zero
	st.AverageMonthlyAmount = decimal.Zero
	for _, p := range completed {
		st.TotalCompletedAmount = st.TotalCompletedAmount.Add(p.Amount)
	}
	if len(completed) > 0 {
		months := utils.MonthsSpanned(completed[0].CreatedAt, time.Now())
		st.AverageMonthlyAmount = st.TotalCompletedAmount.Div(decimal.NewFromInt(int64(months))).Round(2)
	}

	if err := db.Table("course_tutors").Where("user_id = ?", tutorID).Count(&st.NumberOfCourses).Error; err != nil {
		return nil, err
	}
	if err := db.Model(&models.CoursePart{}).Where("course_id IN (?)", courseIDs).Count(&st.NumberOfCourseParts).Error; err != nil {
		return nil, err
	}
	partIDs := db.Model(&models.CoursePart{}).Select("id").Where("course_id IN (?)", courseIDs)
	if err := db.Model(&models.Lesson{}).Where("part_id IN (?)", partIDs).Count(&st.NumberOfLessons).Error; err != nil {
		return nil, err
	}
	if err := db.Model(&models.Enrollment{}).Where("course_id IN (?)", courseIDs).
		Distinct("student_id").Count(&st.NumberOfStudents).Error; err != nil {
		return nil, err
	}
	return st, nil
}

// Invalidate сбрасывает кеш статистики преподавателя
func (s *StatsService) Invalidate(ctx context.Context, tutorID string) {
	if s.rdb != nil {
		s.rdb.Del(ctx, statsCacheKey(tutorID))
	}
}
