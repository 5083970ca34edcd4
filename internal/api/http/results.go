package http

import (
	"math"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"

	"github.com/nehasri1207/RankSarthi/internal/exam"
	"github.com/nehasri1207/RankSarthi/internal/standing"
	"github.com/nehasri1207/RankSarthi/internal/submission"
)

// POST /results
func SubmitHandler(svc *submission.Service, v *validator.Validate) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req submission.Submission
		if err := render.DecodeJSON(r.Body, &req); err != nil {
			renderError(w, r, errInvalidRequest(err))
			return
		}
		if err := v.Struct(req); err != nil {
			renderError(w, r, errValidation(err))
			return
		}
		resp, err := svc.Submit(r.Context(), req)
		if err != nil {
			renderError(w, r, err)
			return
		}
		render.JSON(w, r, resp)
	}
}

// GET /exams/{examID}/standing?score=&category=&zone=&date=&shift=&basis=
func StandingHandler(store exam.Store, engine *standing.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		score, err := strconv.ParseFloat(strings.TrimSpace(q.Get("score")), 64)
		if err != nil || math.IsNaN(score) || math.IsInf(score, 0) {
			renderError(w, r, errInvalidParameter("score"))
			return
		}
		basis := exam.ScoreBasis(q.Get("basis"))
		switch basis {
		case "":
			basis = exam.BasisRaw
		case exam.BasisRaw, exam.BasisNormalized:
		default:
			renderError(w, r, errInvalidParameter("basis"))
			return
		}

		e, err := store.GetExam(r.Context(), chi.URLParam(r, "examID"))
		if err != nil {
			renderError(w, r, err)
			return
		}
		if basis == exam.BasisNormalized && !e.NormalizationVisible {
			renderError(w, r, errNormalizationHidden)
			return
		}

		query := standing.Query{
			Score:    score,
			Category: q.Get("category"),
			Zone:     q.Get("zone"),
			Basis:    basis,
		}
		if date, shift := q.Get("date"), q.Get("shift"); date != "" && shift != "" {
			query.Session = &exam.SessionKey{Date: date, Shift: shift}
		}
		out, err := engine.Compute(r.Context(), e.ID, query)
		if err != nil {
			renderError(w, r, err)
			return
		}
		render.JSON(w, r, out)
	}
}
