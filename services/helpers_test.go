package services

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/otabeknarz/11tutors-backend/models"
)

// newTestDB - отдельная in-memory sqlite база на тест, внешние ключи включены.
// Одно соединение: транзакции выполняются строго по очереди.
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_pragma=foreign_keys(1)", name)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(models.AllModels()...))
	return db
}

type fixture struct {
	db          *gorm.DB
	student     *models.User
	tutor       *models.User
	courseA     *models.Course
	courseB     *models.Course
	enrollments *EnrollmentService
	payments    *PaymentService
	reconciler  *Reconciler
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := newTestDB(t)
	f := &fixture{db: db}

	f.student = &models.User{Email: "student@11tutors.uz", Role: models.RoleStudent, IsEmailVerified: true}
	f.tutor = &models.User{Email: "tutor@11tutors.uz", Role: models.RoleTutor, IsEmailVerified: true}
	require.NoError(t, db.Create(f.student).Error)
	require.NoError(t, db.Create(f.tutor).Error)

	f.courseA = &models.Course{Title: "Calculus", Slug: "calculus", Price: decimal.RequireFromString("20.00"), IsPublished: true, Tutors: []models.User{*f.tutor}}
	f.courseB = &models.Course{Title: "Physics", Slug: "physics", Price: decimal.RequireFromString("30.00"), IsPublished: true}
	require.NoError(t, db.Omit("Tutors.*").Create(f.courseA).Error)
	require.NoError(t, db.Create(f.courseB).Error)

	f.enrollments = NewEnrollmentService(db)
	f.payments = NewPaymentService(db, f.enrollments)
	f.reconciler = NewReconciler(db, f.payments)
	return f
}

func (f *fixture) order(t *testing.T, courses ...*models.Course) *models.Order {
	t.Helper()
	o := &models.Order{UserID: f.student.ID, TotalAmount: decimal.Zero}
	for _, c := range courses {
		o.Courses = append(o.Courses, *c)
		o.TotalAmount = o.TotalAmount.Add(c.Price)
	}
	require.NoError(t, f.db.Omit("Courses.*").Create(o).Error)
	return o
}

func (f *fixture) pending(t *testing.T, o *models.Order, method models.PaymentMethod) *models.Payment {
	t.Helper()
	p, err := f.payments.CreatePending(context.Background(), nil, o, o.TotalAmount, models.CurrencyUSD, method, "test")
	require.NoError(t, err)
	return p
}

func (f *fixture) reload(t *testing.T, id string) *models.Payment {
	t.Helper()
	var p models.Payment
	require.NoError(t, f.db.First(&p, "id = ?", id).Error)
	return &p
}

func (f *fixture) count(t *testing.T, model interface{}, query string, args ...interface{}) int64 {
	t.Helper()
	var n int64
	q := f.db.Model(model)
	if query != "" {
		q = q.Where(query, args...)
	}
	require.NoError(t, q.Count(&n).Error)
	return n
}

// flakyGranter проваливает выдачу одного курса
type flakyGranter struct {
	inner *EnrollmentService
	fail  string
}

func (g *flakyGranter) Grant(ctx context.Context, tx *gorm.DB, studentID string, courseIDs []string) *GrantReport {
	var ok []string
	for _, id := range courseIDs {
		if id != g.fail {
			ok = append(ok, id)
		}
	}
	r := g.inner.Grant(ctx, tx, studentID, ok)
	r.Failed[g.fail] = "storage unavailable"
	return r
}

// recordingPublisher запоминает опубликованные события
type recordingPublisher struct {
	mu     sync.Mutex
	types  []string
	failOn int
}

func (p *recordingPublisher) Publish(_ context.Context, eventType string, _ []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failOn > 0 && len(p.types)+1 == p.failOn {
		return fmt.Errorf("broker down")
	}
	p.types = append(p.types, eventType)
	return nil
}
