package services

import (
	"context"
	"strings"
	"testing"
	"time"

	"schoolpulse_go/config"
	"schoolpulse_go/database/dbtest"
	"schoolpulse_go/database/seeders"
	"schoolpulse_go/models"
	"schoolpulse_go/services/email"
	"schoolpulse_go/services/notifications"
	"schoolpulse_go/storage"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type testEnv struct {
	db     *gorm.DB
	cfg    *config.Config
	mailer *email.ConsoleSender
	notify *notifications.Service
	store  *storage.MemoryStore
	auth   *AuthService
}

func newEnv(t *testing.T) *testEnv {
	t.Helper()
	db := dbtest.New(t)
	require.NoError(t, seeders.SeedBadges(db))
	cfg := config.ForTesting()
	mailer := email.NewConsoleSender(cfg, false)
	return &testEnv{
		db:     db,
		cfg:    cfg,
		mailer: mailer,
		notify: notifications.NewService(db, nil, false),
		store:  storage.NewMemoryStore(),
		auth:   NewAuthService(db, nil, mailer, cfg),
	}
}

// withRedis backs the auth service with an in-memory Redis server.
func (e *testEnv) withRedis(t *testing.T) *miniredis.Miniredis {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	e.auth = NewAuthService(e.db, rdb, e.mailer, e.cfg)
	return mr
}

// principal registers and verifies a principal account.
func (e *testEnv) principal(t *testing.T, address string) *models.User {
	t.Helper()
	ctx := context.Background()
	u, err := e.auth.Register(ctx, RegisterInput{
		Name: "Pat Principal", Email: address, Password: "secret1", ConfirmPassword: "secret1", SchoolName: "Hill School",
	})
	require.NoError(t, err)
	_, err = e.auth.VerifyEmail(ctx, e.lastToken(t, address))
	require.NoError(t, err)
	user, err := e.auth.loadUser(ctx, u.ID)
	require.NoError(t, err)
	return user
}

func (e *testEnv) teachers() *TeacherService {
	return NewTeacherService(e.db, e.auth, e.notify, e.store, e.cfg)
}

// teacher creates a teacher account in principal's school.
func (e *testEnv) teacher(t *testing.T, principal *models.User, name, address, dept string) *models.Teacher {
	t.Helper()
	res, err := e.teachers().Create(context.Background(), principal, TeacherInput{
		FullName:    name,
		Email:       address,
		EmployeeID:  "EMP-" + strings.Split(address, "@")[0],
		Department:  dept,
		Subjects:    []string{"Mathematics"},
		GradeLevels: []string{"Grade 9"},
		JoiningDate: "2024-08-01",
	})
	require.NoError(t, err)
	return res.Teacher
}

func (e *testEnv) lastToken(t *testing.T, address string) string {
	t.Helper()
	msg, ok := e.mailer.Last(address)
	require.True(t, ok, "no email sent to %s", address)
	var link string
	switch d := msg.Data.(type) {
	case email.LinkData:
		link = d.Link
	case email.InviteData:
		link = d.Link
	}
	i := strings.Index(link, "token=")
	require.GreaterOrEqual(t, i, 0, "no token in %q", link)
	return link[i+len("token="):]
}

func (e *testEnv) reloadTeacher(t *testing.T, id string) *models.Teacher {
	t.Helper()
	var tch models.Teacher
	require.NoError(t, e.db.First(&tch, "id = ?", id).Error)
	return &tch
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}
