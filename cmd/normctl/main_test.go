package main

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	auth "github.com/nehasri1207/RankSarthi/internal/auth/middleware"
	"github.com/nehasri1207/RankSarthi/internal/config"
	"github.com/nehasri1207/RankSarthi/internal/exam"
	"github.com/nehasri1207/RankSarthi/internal/export"
	"github.com/nehasri1207/RankSarthi/internal/rbac"
	syncx "github.com/nehasri1207/RankSarthi/internal/sync"
)

func fp(v float64) *float64 { return &v }

func seeded(t *testing.T) *exam.MemoryStore {
	t.Helper()
	ctx := context.Background()
	store := exam.NewMemoryStore()
	_, err := store.CreateExam(ctx, exam.Exam{ID: "ntpc", Name: "RRB NTPC", Family: exam.FamilyRailway, QuestionCount: 100, MarksPerQuestion: 1})
	require.NoError(t, err)
	for _, r := range []exam.CandidateResult{
		{RollNo: "A1", Zone: "North", SessionDate: "d1", SessionShift: "1", RawScore: fp(80)},
		{RollNo: "A2", Zone: "North", SessionDate: "d1", SessionShift: "1", RawScore: fp(60)},
		{RollNo: "B1", Zone: "South", SessionDate: "d1", SessionShift: "2", RawScore: fp(70)},
		{RollNo: "B2", Zone: "South", SessionDate: "d1", SessionShift: "2", RawScore: fp(50)},
	} {
		r.ExamID = "ntpc"
		_, err := store.UpsertResult(ctx, r)
		require.NoError(t, err)
	}
	return store
}

func TestParseFlags(t *testing.T) {
	t.Setenv("RANKSARTHI_DB_DRIVER", "postgres")
	o, err := parseFlags([]string{"-exam", "ntpc", "-run", "-score", "71.5"})
	require.NoError(t, err)
	assert.Equal(t, "postgres", o.dbDriver)
	assert.Equal(t, "ntpc", o.examID)
	assert.True(t, o.run)
	assert.Equal(t, 71.5, o.score)
	assert.Equal(t, "raw", o.basis)
}

func TestExecuteRunResultsStanding(t *testing.T) {
	store := seeded(t)
	var log syncx.MemoryLog
	var out bytes.Buffer

	err := execute(context.Background(), options{
		examID: "ntpc", list: true, run: true, results: true,
		standing: true, score: 70, zone: "South", basis: "raw",
	}, store, &log, &out)
	require.NoError(t, err)

	s := out.String()
	assert.Contains(t, s, "RRB NTPC")
	assert.Contains(t, s, "4 results normalized")
	assert.Contains(t, s, "d1_2")
	assert.Contains(t, s, "Category x Zone")
	assert.Contains(t, s, "75.00", "overall: rank 2 of 4")

	events, _ := log.Since(context.Background(), 0, 0)
	require.Len(t, events, 1)
	assert.Equal(t, syncx.EventNormalizationCompleted, events[0].Type)
}

func TestExecuteExport(t *testing.T) {
	store := seeded(t)
	path := filepath.Join(t.TempDir(), "ntpc.xlsx")
	var out bytes.Buffer
	require.NoError(t, execute(context.Background(), options{examID: "ntpc", export: path}, store, nil, &out))
	assert.Contains(t, out.String(), "wrote")

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()
	rows, err := f.GetRows(export.ResultsSheet)
	require.NoError(t, err)
	assert.Len(t, rows, 5)
}

func TestExecuteRequiresAction(t *testing.T) {
	store := seeded(t)
	assert.Error(t, execute(context.Background(), options{}, store, nil, &bytes.Buffer{}))
	assert.Error(t, execute(context.Background(), options{run: true}, store, nil, &bytes.Buffer{}))
	assert.ErrorIs(t, execute(context.Background(), options{examID: "nope", run: true}, store, nil, &bytes.Buffer{}), exam.ErrExamNotFound)
}

func TestIssueToken(t *testing.T) {
	var out bytes.Buffer
	o := options{token: rbac.RoleOperator, subject: "ops", authSecret: "k", tokenTTL: time.Hour}
	require.NoError(t, issueToken(o, &out))

	claims, err := auth.NewAuthService(config.AuthConfig{Secret: "k"}).Parse(string(bytes.TrimSpace(out.Bytes())))
	require.NoError(t, err)
	assert.Equal(t, rbac.RoleOperator, claims.Role)
	assert.Equal(t, "ops", claims.Sub)

	assert.Error(t, issueToken(options{token: "student", authSecret: "k"}, &out))
	assert.Error(t, issueToken(options{token: rbac.RoleAdmin}, &out))
}
