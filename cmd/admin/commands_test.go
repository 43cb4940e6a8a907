package main

import (
	"bytes"
	"testing"

	"schoolpulse_go/config"
	"schoolpulse_go/database/dbtest"
	"schoolpulse_go/models"
	"schoolpulse_go/utils"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func useTestDB(t *testing.T) {
	t.Helper()
	cfg = config.ForTesting()
	db = dbtest.New(t)
	t.Cleanup(func() {
		cfg = nil
		db = nil
	})
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func TestCreatePrincipalAndResetPassword(t *testing.T) {
	useTestDB(t)

	out, err := run(t, "create-principal",
		"--email", "Head@School.org", "--password", "secret1",
		"--name", "Ada Head", "--school", "North High")
	require.NoError(t, err)
	assert.Contains(t, out, "Created principal head@school.org")

	var u models.User
	require.NoError(t, db.Preload("Principal").Where("email = ?", "head@school.org").First(&u).Error)
	assert.True(t, u.EmailVerified)
	assert.Equal(t, models.SchoolIDFor(u.ID), u.SchoolID)
	require.NotNil(t, u.Principal)
	assert.Equal(t, "North High", u.Principal.SchoolName)

	out, err = run(t, "reset-password", "head@school.org", "another1")
	require.NoError(t, err)
	assert.Contains(t, out, "Password updated")
	require.NoError(t, db.First(&u, "id = ?", u.ID).Error)
	assert.NoError(t, utils.CheckPassword("another1", u.Password))

	_, err = run(t, "reset-password", "nobody@school.org", "another1")
	assert.Equal(t, utils.CodeUserNotFound, utils.AuthCode(err))
}

func TestSeedAndMetricsCommands(t *testing.T) {
	useTestDB(t)

	out, err := run(t, "seed", "--demo")
	require.NoError(t, err)
	assert.Contains(t, out, "Seeding completed")

	var badges int64
	require.NoError(t, db.Model(&models.Badge{}).Count(&badges).Error)
	assert.Positive(t, badges)

	out, err = run(t, "compute-metrics", "2026", "3")
	require.NoError(t, err)
	assert.Contains(t, out, "Computed 2026-03 metrics for 2 teachers")

	_, err = run(t, "compute-metrics", "2026")
	assert.EqualError(t, err, "give both year and month")
}

func TestArchiveLogsWithNothingOld(t *testing.T) {
	useTestDB(t)

	out, err := run(t, "archive-logs", "--days", "30")
	require.NoError(t, err)
	assert.Contains(t, out, "Nothing to archive")
}
