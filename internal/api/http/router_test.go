package http_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	api "github.com/nehasri1207/RankSarthi/internal/api/http"
	auth "github.com/nehasri1207/RankSarthi/internal/auth/middleware"
	"github.com/nehasri1207/RankSarthi/internal/config"
	"github.com/nehasri1207/RankSarthi/internal/exam"
	"github.com/nehasri1207/RankSarthi/internal/export"
	"github.com/nehasri1207/RankSarthi/internal/logging"
	"github.com/nehasri1207/RankSarthi/internal/normalization"
	"github.com/nehasri1207/RankSarthi/internal/rbac"
	"github.com/nehasri1207/RankSarthi/internal/standing"
	"github.com/nehasri1207/RankSarthi/internal/submission"
)

type downPinger struct{}

func (downPinger) PingContext(context.Context) error { return errors.New("down") }

type harness struct {
	srv   *httptest.Server
	store *exam.MemoryStore
	auth  *auth.AuthService
}

func newHarness(t *testing.T, mutate func(*api.Deps)) *harness {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte("s3cret"), bcrypt.MinCost)
	require.NoError(t, err)
	store := exam.NewMemoryStore()
	log := logging.Discard()
	authSvc := auth.NewAuthService(config.AuthConfig{Secret: "k", AdminUser: "admin", AdminPassHash: string(hash), TokenTTL: time.Hour})
	engine := standing.New(store, nil)

	d := api.Deps{
		Config:     config.ServerConfig{CORSOrigins: []string{"http://localhost:3000"}},
		Store:      store,
		Auth:       authSvc,
		Submission: submission.NewService(store, engine, nil, submission.WithLogger(log)),
		Standings:  engine,
		Runner:     normalization.NewRunner(store, normalization.WithLogger(log)),
		Log:        log,
	}
	if mutate != nil {
		mutate(&d)
	}
	srv := httptest.NewServer(api.NewRouter(d))
	t.Cleanup(srv.Close)
	return &harness{srv: srv, store: store, auth: authSvc}
}

func (h *harness) do(t *testing.T, method, path, token, payload string) (*http.Response, []byte) {
	t.Helper()
	req, err := http.NewRequest(method, h.srv.URL+path, strings.NewReader(payload))
	require.NoError(t, err)
	if payload != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := h.srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, body
}

func (h *harness) token(t *testing.T, role string) string {
	t.Helper()
	tok, _, err := h.auth.IssueJWT("tester", role)
	require.NoError(t, err)
	return tok
}

func errorCode(t *testing.T, body []byte) string {
	t.Helper()
	var e api.APIError
	require.NoError(t, json.Unmarshal(body, &e))
	return e.ErrorCode
}

func TestHealth(t *testing.T) {
	h := newHarness(t, nil)
	resp, _ := h.do(t, http.MethodGet, "/healthz", "", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp, _ = h.do(t, http.MethodGet, "/readyz", "", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	down := newHarness(t, func(d *api.Deps) { d.Ready = downPinger{} })
	resp, _ = down.do(t, http.MethodGet, "/readyz", "", "")
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	resp, _ = h.do(t, http.MethodGet, "/metrics", "", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode, "metrics only mount when configured")
}

func TestAdminFlow(t *testing.T) {
	h := newHarness(t, nil)

	resp, body := h.do(t, http.MethodPost, "/auth/login", "", `{"username":"admin","password":"s3cret"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var login struct {
		AccessToken string `json:"access_token"`
	}
	require.NoError(t, json.Unmarshal(body, &login))
	tok := login.AccessToken

	resp, body = h.do(t, http.MethodPost, "/admin/exams", tok,
		`{"id":"cgl","name":"SSC CGL","family":"SSC","question_count":100,"marks_per_question":2,"negative_marks":0.5}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))

	resp, body = h.do(t, http.MethodPost, "/admin/exams/cgl/rank-bands", tok,
		`{"min_score":50,"max_score":120,"min_rank":100,"max_rank":900,"cutoff_probability":"Medium"}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))

	subs := []string{
		`{"exam_id":"cgl","roll_no":"R1","exam_date":"d1","exam_shift":"1","correct":50,"wrong":0}`,
		`{"exam_id":"cgl","roll_no":"R2","exam_date":"d1","exam_shift":"1","correct":30,"wrong":0}`,
		`{"exam_id":"cgl","roll_no":"R3","exam_date":"d1","exam_shift":"2","correct":40,"wrong":4}`,
	}
	var last submission.Response
	for _, s := range subs {
		resp, body = h.do(t, http.MethodPost, "/results", "", s)
		require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
		require.NoError(t, json.Unmarshal(body, &last))
	}
	assert.Equal(t, 78.0, last.Score.RawScore)
	assert.Equal(t, standing.Standing{Rank: 2, Total: 3, Percentile: "66.67"}, last.Standings.Overall)
	assert.Equal(t, submission.Prediction{MinRank: 100, MaxRank: 900, CutoffProbability: "Medium"}, last.Prediction)
	assert.Nil(t, last.NormalizedScore)

	resp, body = h.do(t, http.MethodGet, "/exams/cgl/standing?score=80&basis=normalized", "", "")
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Equal(t, "NORMALIZATION_HIDDEN", errorCode(t, body))

	resp, _ = h.do(t, http.MethodPut, "/admin/exams/cgl/visibility", tok, `{"visible":true}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body = h.do(t, http.MethodPost, "/admin/exams/cgl/normalize", tok, "")
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	var run normalization.RunResult
	require.NoError(t, json.Unmarshal(body, &run))
	assert.True(t, run.Success)
	assert.Equal(t, 3, run.Count)

	resp, body = h.do(t, http.MethodGet, "/exams/cgl/standing?score=0&basis=normalized&date=d1&shift=1", "", "")
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	var st standing.Standings
	require.NoError(t, json.Unmarshal(body, &st))
	assert.Equal(t, 3, st.Overall.Total)
	assert.Equal(t, 2, st.Shift.Total)

	resp, body = h.do(t, http.MethodGet, "/admin/exams/cgl/export.xlsx", tok, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, export.ContentType, resp.Header.Get("Content-Type"))
	assert.NotEmpty(t, body)
}

func TestAdminAuthorization(t *testing.T) {
	h := newHarness(t, nil)
	_, err := h.store.CreateExam(context.Background(), exam.Exam{ID: "ntpc", Name: "NTPC", Family: exam.FamilyRailway, QuestionCount: 100, MarksPerQuestion: 1})
	require.NoError(t, err)

	resp, _ := h.do(t, http.MethodPost, "/admin/exams/ntpc/normalize", "", "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	op := h.token(t, rbac.RoleOperator)
	resp, _ = h.do(t, http.MethodPost, "/admin/exams", op, `{"name":"x","family":"SSC","question_count":1,"marks_per_question":1}`)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp, _ = h.do(t, http.MethodPost, "/admin/exams/ntpc/normalize", op, "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = h.do(t, http.MethodGet, "/admin/exams/ntpc/export.xlsx", op, "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = h.do(t, http.MethodPut, "/admin/exams/ntpc/visibility", op, `{"visible":true}`)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestErrors(t *testing.T) {
	h := newHarness(t, nil)
	admin := h.token(t, rbac.RoleAdmin)
	_, err := h.store.CreateExam(context.Background(), exam.Exam{ID: "cgl", Name: "CGL", Family: exam.FamilySSC, QuestionCount: 10, MarksPerQuestion: 1})
	require.NoError(t, err)

	tests := []struct {
		name, method, path, token, body string
		status                           int
		code                             string
	}{
		{"bad exam payload", http.MethodPost, "/admin/exams", admin, `{"name":"","family":"GATE","question_count":0}`, 400, "VALIDATION_FAILED"},
		{"malformed json", http.MethodPost, "/admin/exams", admin, `{`, 400, "INVALID_REQUEST"},
		{"band ranks inverted", http.MethodPost, "/admin/exams/cgl/rank-bands", admin, `{"min_score":1,"max_score":2,"min_rank":10,"max_rank":5,"cutoff_probability":"Low"}`, 400, "VALIDATION_FAILED"},
		{"band for unknown exam", http.MethodPost, "/admin/exams/nope/rank-bands", admin, `{"min_score":1,"max_score":2,"min_rank":1,"max_rank":5,"cutoff_probability":"Low"}`, 404, "EXAM_NOT_FOUND"},
		{"visibility missing flag", http.MethodPut, "/admin/exams/cgl/visibility", admin, `{}`, 400, "INVALID_PARAMETER"},
		{"normalize unknown exam", http.MethodPost, "/admin/exams/nope/normalize", admin, "", 404, "EXAM_NOT_FOUND"},
		{"submit unknown exam", http.MethodPost, "/results", "", `{"exam_id":"nope","correct":1,"wrong":0}`, 404, "EXAM_NOT_FOUND"},
		{"submit missing exam id", http.MethodPost, "/results", "", `{"correct":1,"wrong":0}`, 400, "VALIDATION_FAILED"},
		{"submit too many answers", http.MethodPost, "/results", "", `{"exam_id":"cgl","correct":8,"wrong":8}`, 400, "INVALID_COUNTS"},
		{"quick check unknown roll", http.MethodPost, "/results", "", `{"exam_id":"cgl","roll_no":"R404"}`, 404, "RESULT_NOT_FOUND"},
		{"standing without score", http.MethodGet, "/exams/cgl/standing", "", "", 400, "INVALID_PARAMETER"},
		{"standing NaN score", http.MethodGet, "/exams/cgl/standing?score=NaN", "", "", 400, "INVALID_PARAMETER"},
		{"standing infinite score", http.MethodGet, "/exams/cgl/standing?score=-Inf", "", "", 400, "INVALID_PARAMETER"},
		{"standing bad basis", http.MethodGet, "/exams/cgl/standing?score=1&basis=zone", "", "", 400, "INVALID_PARAMETER"},
		{"standing unknown exam", http.MethodGet, "/exams/nope/standing?score=1", "", "", 404, "EXAM_NOT_FOUND"},
		{"unknown exam", http.MethodGet, "/exams/nope", "", "", 404, "EXAM_NOT_FOUND"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			resp, body := h.do(t, tc.method, tc.path, tc.token, tc.body)
			assert.Equal(t, tc.status, resp.StatusCode, string(body))
			assert.Equal(t, tc.code, errorCode(t, body))
		})
	}
}

func TestListExams(t *testing.T) {
	h := newHarness(t, nil)
	resp, body := h.do(t, http.MethodGet, "/exams", "", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `[]`, string(body))

	for _, fam := range []exam.Family{exam.FamilySSC, exam.FamilyRailway} {
		_, err := h.store.CreateExam(context.Background(), exam.Exam{Name: string(fam), Family: fam, QuestionCount: 1, MarksPerQuestion: 1})
		require.NoError(t, err)
	}
	resp, body = h.do(t, http.MethodGet, "/exams?family=Railway", "", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var list []exam.Exam
	require.NoError(t, json.Unmarshal(body, &list))
	require.Len(t, list, 1)
	assert.Equal(t, exam.FamilyRailway, list[0].Family)
}

func TestSubmitRateLimited(t *testing.T) {
	h := newHarness(t, func(d *api.Deps) {
		d.Config.SubmitRPS = 0.001
		d.Config.SubmitBurst = 1
	})
	_, err := h.store.CreateExam(context.Background(), exam.Exam{ID: "cgl", Name: "CGL", Family: exam.FamilySSC, QuestionCount: 10, MarksPerQuestion: 1})
	require.NoError(t, err)

	body := `{"exam_id":"cgl","correct":1,"wrong":0}`
	resp, _ := h.do(t, http.MethodPost, "/results", "", body)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp, out := h.do(t, http.MethodPost, "/results", "", body)
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.Equal(t, "RATE_LIMIT_EXCEEDED", errorCode(t, out))
}
