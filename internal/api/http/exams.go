package http

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"

	"github.com/nehasri1207/RankSarthi/internal/exam"
	"github.com/nehasri1207/RankSarthi/internal/export"
	"github.com/nehasri1207/RankSarthi/internal/normalization"
)

// NormalizationRunner runs normalization synchronously; *normalization.Runner satisfies it.
type NormalizationRunner interface {
	Run(ctx context.Context, examID string) (normalization.RunResult, error)
}

func ListExamsHandler(store exam.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		list, err := store.ListExams(r.Context(), exam.ListOpts{
			Family: exam.Family(r.URL.Query().Get("family")),
			Limit:  parseIntDefault(r.URL.Query().Get("limit"), 50),
			Offset: parseIntDefault(r.URL.Query().Get("offset"), 0),
		})
		if err != nil {
			renderError(w, r, err)
			return
		}
		if list == nil {
			list = []exam.Exam{}
		}
		render.JSON(w, r, list)
	}
}

func GetExamHandler(store exam.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		e, err := store.GetExam(r.Context(), chi.URLParam(r, "examID"))
		if err != nil {
			renderError(w, r, err)
			return
		}
		render.JSON(w, r, e)
	}
}

type createExamRequest struct {
	ID                   string      `json:"id,omitempty" validate:"omitempty,max=64"`
	Name                 string      `json:"name" validate:"required,max=128"`
	Family               exam.Family `json:"family" validate:"required,oneof=SSC Railway Banking"`
	QuestionCount        int         `json:"question_count" validate:"gt=0"`
	MarksPerQuestion     float64     `json:"marks_per_question" validate:"gt=0"`
	NegativeMarks        float64     `json:"negative_marks" validate:"gte=0"`
	NormalizationVisible bool        `json:"normalization_visible"`
}

// POST /admin/exams
func CreateExamHandler(store exam.Store, v *validator.Validate) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req createExamRequest
		if err := render.DecodeJSON(r.Body, &req); err != nil {
			renderError(w, r, errInvalidRequest(err))
			return
		}
		if err := v.Struct(req); err != nil {
			renderError(w, r, errValidation(err))
			return
		}
		e, err := store.CreateExam(r.Context(), exam.Exam{
			ID:                   req.ID,
			Name:                 req.Name,
			Family:               req.Family,
			QuestionCount:        req.QuestionCount,
			MarksPerQuestion:     req.MarksPerQuestion,
			NegativeMarks:        req.NegativeMarks,
			NormalizationVisible: req.NormalizationVisible,
		})
		if err != nil {
			renderError(w, r, err)
			return
		}
		render.Status(r, http.StatusCreated)
		render.JSON(w, r, e)
	}
}

// PUT /admin/exams/{examID}/visibility  { "visible": true }
func SetVisibilityHandler(store exam.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Visible *bool `json:"visible"`
		}
		if err := render.DecodeJSON(r.Body, &req); err != nil {
			renderError(w, r, errInvalidRequest(err))
			return
		}
		if req.Visible == nil {
			renderError(w, r, errInvalidParameter("visible"))
			return
		}
		id := chi.URLParam(r, "examID")
		if err := store.SetNormalizationVisible(r.Context(), id, *req.Visible); err != nil {
			renderError(w, r, err)
			return
		}
		render.JSON(w, r, map[string]any{"exam_id": id, "normalization_visible": *req.Visible})
	}
}

type rankBandRequest struct {
	MinScore          float64 `json:"min_score"`
	MaxScore          float64 `json:"max_score" validate:"gtefield=MinScore"`
	MinRank           int     `json:"min_rank" validate:"gte=1"`
	MaxRank           int     `json:"max_rank" validate:"gtefield=MinRank"`
	CutoffProbability string  `json:"cutoff_probability" validate:"required,max=32"`
}

// POST /admin/exams/{examID}/rank-bands
func AddRankBandHandler(store exam.Store, v *validator.Validate) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req rankBandRequest
		if err := render.DecodeJSON(r.Body, &req); err != nil {
			renderError(w, r, errInvalidRequest(err))
			return
		}
		if err := v.Struct(req); err != nil {
			renderError(w, r, errValidation(err))
			return
		}
		b, err := store.AddRankBand(r.Context(), exam.RankBand{
			ExamID:            chi.URLParam(r, "examID"),
			MinScore:          req.MinScore,
			MaxScore:          req.MaxScore,
			MinRank:           req.MinRank,
			MaxRank:           req.MaxRank,
			CutoffProbability: req.CutoffProbability,
		})
		if err != nil {
			renderError(w, r, err)
			return
		}
		render.Status(r, http.StatusCreated)
		render.JSON(w, r, b)
	}
}

// POST /admin/exams/{examID}/normalize runs normalization now, bypassing the cooldown.
func NormalizeHandler(runner NormalizationRunner) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		res, err := runner.Run(r.Context(), chi.URLParam(r, "examID"))
		if err != nil {
			renderError(w, r, err)
			return
		}
		render.JSON(w, r, res)
	}
}

// GET /admin/exams/{examID}/export.xlsx
func ExportHandler(store exam.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		e, err := store.GetExam(ctx, chi.URLParam(r, "examID"))
		if err != nil {
			renderError(w, r, err)
			return
		}
		rows, err := store.ListResults(ctx, e.ID)
		if err != nil {
			renderError(w, r, err)
			return
		}
		var buf bytes.Buffer
		if err := export.Results(&buf, e, rows); err != nil {
			renderError(w, r, err)
			return
		}
		w.Header().Set("Content-Type", export.ContentType)
		w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s.xlsx"`, e.ID))
		_, _ = buf.WriteTo(w)
	}
}

func parseIntDefault(s string, def int) int {
	if s == "" {
		return def
	}
	if v, err := strconv.Atoi(s); err == nil && v >= 0 {
		return v
	}
	return def
}
