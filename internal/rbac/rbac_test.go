package rbac

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCheckerHas(t *testing.T) {
	c := NewChecker(nil)
	assert.True(t, c.Has(RoleAdmin, PermExamCreate))
	assert.True(t, c.Has(RoleOperator, PermNormalizationRun))
	assert.False(t, c.Has(RoleOperator, PermExamCreate))
	assert.False(t, c.Has("candidate", PermExamView))
	assert.True(t, c.Any(RoleOperator, PermExamManage, PermExamExport))
}

func TestMatchPermWildcard(t *testing.T) {
	c := NewChecker(map[string][]string{"auditor": {"exam:*"}})
	assert.True(t, c.Has("auditor", PermExamExport))
	assert.False(t, c.Has("auditor", PermNormalizationRun))
}

func TestContextValues(t *testing.T) {
	ctx := WithSubject(WithRole(context.Background(), RoleAdmin), "root")
	assert.Equal(t, RoleAdmin, RoleFromContext(ctx))
	assert.Equal(t, "root", SubjectFromContext(ctx))
	assert.Empty(t, RoleFromContext(context.Background()))
	assert.Empty(t, SubjectFromContext(context.Background()))
}

func TestRequire(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusNoContent) })

	tests := []struct {
		name    string
		role    string
		handler http.Handler
		want    int
	}{
		{"admin creates", RoleAdmin, Require(PermExamCreate)(ok), http.StatusNoContent},
		{"operator cannot create", RoleOperator, Require(PermExamCreate)(ok), http.StatusForbidden},
		{"no role", "", Require(PermExamView)(ok), http.StatusForbidden},
		{"operator any", RoleOperator, RequireAny(PermExamManage, PermNormalizationRun)(ok), http.StatusNoContent},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/", nil)
			if tc.role != "" {
				req = req.WithContext(WithRole(req.Context(), tc.role))
			}
			rec := httptest.NewRecorder()
			tc.handler.ServeHTTP(rec, req)
			assert.Equal(t, tc.want, rec.Code)
		})
	}
}
