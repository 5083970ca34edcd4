package exam

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nehasri1207/RankSarthi/internal/db"
)

type SQLStore struct {
	db     *sql.DB
	driver string // "sqlite" or "postgres"
}

func NewSQLStore(db *sql.DB, driver string) *SQLStore {
	return &SQLStore{db: db, driver: driver}
}

const examColumns = `id,name,family,question_count,marks_per_question,negative_marks,total_marks,normalization_visible,created_at`

const resultColumns = `id,exam_id,roll_no,name,category,gender,state,zone,exam_date,exam_shift,
	correct_count,wrong_count,sections_json,raw_score,normalized_score,zone_normalized_score,percentile,created_at`

type scanner interface {
	Scan(dest ...any) error
}

func (s *SQLStore) CreateExam(ctx context.Context, e Exam) (Exam, error) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.TotalMarks == 0 {
		e.TotalMarks = float64(e.QuestionCount) * e.MarksPerQuestion
	}
	e.CreatedAt = time.Now().Unix()
	_, err := s.db.ExecContext(ctx, `INSERT INTO exams (`+examColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		e.ID, e.Name, string(e.Family), e.QuestionCount, e.MarksPerQuestion, e.NegativeMarks,
		e.TotalMarks, boolToInt(e.NormalizationVisible), e.CreatedAt)
	if err != nil {
		return Exam{}, err
	}
	return e, nil
}

func (s *SQLStore) GetExam(ctx context.Context, id string) (Exam, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+examColumns+` FROM exams WHERE id=$1`, id)
	e, err := scanExam(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Exam{}, ErrExamNotFound
	}
	return e, err
}

func (s *SQLStore) ListExams(ctx context.Context, opts ListOpts) ([]Exam, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 100
	}
	q := `SELECT ` + examColumns + ` FROM exams`
	args := []any{}
	if opts.Family != "" {
		args = append(args, string(opts.Family))
		q += ` WHERE family=$1`
	}
	args = append(args, limit, opts.Offset)
	q += fmt.Sprintf(` ORDER BY created_at DESC, id LIMIT $%d OFFSET $%d`, len(args)-1, len(args))

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Exam
	for rows.Next() {
		e, err := scanExam(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *SQLStore) SetNormalizationVisible(ctx context.Context, id string, visible bool) error {
	res, err := s.db.ExecContext(ctx, `UPDATE exams SET normalization_visible=$1 WHERE id=$2`, boolToInt(visible), id)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrExamNotFound
	}
	return nil
}

func (s *SQLStore) AddRankBand(ctx context.Context, b RankBand) (RankBand, error) {
	if _, err := s.GetExam(ctx, b.ExamID); err != nil {
		return RankBand{}, err
	}
	err := s.db.QueryRowContext(ctx, `INSERT INTO rank_bands (exam_id,min_score,max_score,min_rank,max_rank,cutoff_probability)
		VALUES ($1,$2,$3,$4,$5,$6) RETURNING id`,
		b.ExamID, b.MinScore, b.MaxScore, b.MinRank, b.MaxRank, b.CutoffProbability).Scan(&b.ID)
	if err != nil {
		return RankBand{}, err
	}
	return b, nil
}

func (s *SQLStore) FindRankBand(ctx context.Context, examID string, score float64) (RankBand, bool, error) {
	var b RankBand
	err := s.db.QueryRowContext(ctx, `SELECT id,exam_id,min_score,max_score,min_rank,max_rank,cutoff_probability
		FROM rank_bands WHERE exam_id=$1 AND $2 >= min_score AND $2 <= max_score
		ORDER BY min_score DESC, id LIMIT 1`, examID, score).
		Scan(&b.ID, &b.ExamID, &b.MinScore, &b.MaxScore, &b.MinRank, &b.MaxRank, &b.CutoffProbability)
	if errors.Is(err, sql.ErrNoRows) {
		return RankBand{}, false, nil
	}
	if err != nil {
		return RankBand{}, false, err
	}
	return b, true, nil
}

func (s *SQLStore) MaxBandScore(ctx context.Context, examID string) (float64, error) {
	var highest float64
	err := s.db.QueryRowContext(ctx, `SELECT COALESCE(MAX(max_score), 0) FROM rank_bands WHERE exam_id=$1`, examID).Scan(&highest)
	return highest, err
}

func (s *SQLStore) UpsertResult(ctx context.Context, r CandidateResult) (CandidateResult, error) {
	sectionsJSON, err := marshalSections(r.Sections)
	if err != nil {
		return CandidateResult{}, err
	}
	err = db.WithTx(ctx, s.db, nil, func(tx *sql.Tx) error {
		if r.RollNo != "" {
			var existing string
			err := tx.QueryRowContext(ctx, `SELECT id FROM results WHERE exam_id=$1 AND roll_no=$2`, r.ExamID, r.RollNo).Scan(&existing)
			switch {
			case err == nil:
				r.ID = existing
				_, err = tx.ExecContext(ctx, `UPDATE results SET raw_score=$1, category=$2, gender=$3, state=$4, zone=$5,
					sections_json=$6, correct_count=$7, wrong_count=$8 WHERE id=$9`,
					nullFloat(r.RawScore), r.Category, r.Gender, r.State, r.Zone,
					sectionsJSON, nullInt(r.CorrectCount), nullInt(r.WrongCount), existing)
				return err
			case !errors.Is(err, sql.ErrNoRows):
				return err
			}
		}
		if r.ID == "" {
			r.ID = uuid.NewString()
		}
		_, err := tx.ExecContext(ctx, `INSERT INTO results (`+resultColumns+`)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,NULL,NULL,NULL,$15)`,
			r.ID, r.ExamID, nullString(r.RollNo), r.Name, r.Category, r.Gender, r.State, r.Zone,
			r.SessionDate, r.SessionShift, nullInt(r.CorrectCount), nullInt(r.WrongCount),
			sectionsJSON, nullFloat(r.RawScore), time.Now().Unix())
		return err
	})
	if err != nil {
		return CandidateResult{}, err
	}
	return s.getResult(ctx, `id=$1`, r.ID)
}

func (s *SQLStore) GetResultByRoll(ctx context.Context, examID, rollNo string) (CandidateResult, error) {
	return s.getResult(ctx, `exam_id=$1 AND roll_no=$2`, examID, rollNo)
}

func (s *SQLStore) getResult(ctx context.Context, where string, args ...any) (CandidateResult, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+resultColumns+` FROM results WHERE `+where, args...)
	r, err := scanResult(row)
	if errors.Is(err, sql.ErrNoRows) {
		return CandidateResult{}, ErrResultNotFound
	}
	return r, err
}

func (s *SQLStore) ListResults(ctx context.Context, examID string) ([]CandidateResult, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+resultColumns+` FROM results WHERE exam_id=$1
		ORDER BY exam_date, exam_shift, raw_score DESC, id`, examID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []CandidateResult
	for rows.Next() {
		r, err := scanResult(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// FetchResultsForExam returns the normalization population ordered by session.
// Rows without a raw score or session are reported in Skipped.
func (s *SQLStore) FetchResultsForExam(ctx context.Context, examID string) (ResultSet, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, raw_score, exam_date, exam_shift, zone, category
		FROM results WHERE exam_id=$1 ORDER BY exam_date, exam_shift, created_at, id`, examID)
	if err != nil {
		return ResultSet{}, err
	}
	defer rows.Close()

	var set ResultSet
	for rows.Next() {
		var (
			id, date, shift, zone, category string
			raw                             sql.NullFloat64
		)
		if err := rows.Scan(&id, &raw, &date, &shift, &zone, &category); err != nil {
			return ResultSet{}, err
		}
		date, shift = strings.TrimSpace(date), strings.TrimSpace(shift)
		if !validRow(floatPtr(raw), date, shift) {
			set.Skipped = append(set.Skipped, id)
			continue
		}
		set.Rows = append(set.Rows, ScoreRow{
			ID:       id,
			RawScore: raw.Float64,
			Session:  SessionKey{Date: date, Shift: shift},
			Zone:     strings.TrimSpace(zone),
			Category: category,
		})
	}
	return set, rows.Err()
}

// ApplyNormalizationBatch writes every update in one transaction. An update
// whose row has disappeared aborts the batch with ErrStaleBatch.
func (s *SQLStore) ApplyNormalizationBatch(ctx context.Context, updates []NormalizationUpdate) error {
	if len(updates) == 0 {
		return nil
	}
	return db.WithTx(ctx, s.db, nil, func(tx *sql.Tx) error {
		plain, err := tx.PrepareContext(ctx, `UPDATE results SET normalized_score=$1, percentile=$2 WHERE id=$3`)
		if err != nil {
			return err
		}
		defer plain.Close()
		withZone, err := tx.PrepareContext(ctx, `UPDATE results SET normalized_score=$1, percentile=$2, zone_normalized_score=$3 WHERE id=$4`)
		if err != nil {
			return err
		}
		defer withZone.Close()

		for _, u := range updates {
			var res sql.Result
			if u.SetZone {
				res, err = withZone.ExecContext(ctx, nullFloat(u.NormalizedScore), nullFloat(u.Percentile), nullFloat(u.ZoneNormalizedScore), u.ID)
			} else {
				res, err = plain.ExecContext(ctx, nullFloat(u.NormalizedScore), nullFloat(u.Percentile), u.ID)
			}
			if err != nil {
				return fmt.Errorf("update result %s: %w", u.ID, err)
			}
			if n, err := res.RowsAffected(); err == nil && n == 0 {
				return fmt.Errorf("%w: result %s", ErrStaleBatch, u.ID)
			}
		}
		return nil
	})
}

func (s *SQLStore) CountAndRank(ctx context.Context, examID string, scope Scope, score float64) (RankCount, error) {
	col := "raw_score"
	if scope.Basis == BasisNormalized {
		col = "normalized_score"
	}
	// placeholders are numbered in order of appearance
	q := `SELECT COUNT(*), COALESCE(SUM(CASE WHEN ` + col + ` > $1 THEN 1 ELSE 0 END), 0)
		FROM results WHERE exam_id=$2`
	args := []any{score, examID}
	if scope.Basis == BasisNormalized {
		q += ` AND normalized_score IS NOT NULL`
	}
	if scope.Category != "" {
		args = append(args, scope.Category)
		q += fmt.Sprintf(` AND category=$%d`, len(args))
	}
	if scope.Zone != "" {
		args = append(args, scope.Zone)
		q += fmt.Sprintf(` AND zone=$%d`, len(args))
	}
	if scope.Session != nil {
		args = append(args, scope.Session.Date, scope.Session.Shift)
		q += fmt.Sprintf(` AND exam_date=$%d AND exam_shift=$%d`, len(args)-1, len(args))
	}
	var rc RankCount
	if err := s.db.QueryRowContext(ctx, q, args...).Scan(&rc.Count, &rc.Above); err != nil {
		return RankCount{}, err
	}
	return rc, nil
}

// ---- scanning helpers ----

func scanExam(sc scanner) (Exam, error) {
	var (
		e       Exam
		family  string
		visible int
	)
	if err := sc.Scan(&e.ID, &e.Name, &family, &e.QuestionCount, &e.MarksPerQuestion, &e.NegativeMarks,
		&e.TotalMarks, &visible, &e.CreatedAt); err != nil {
		return Exam{}, err
	}
	e.Family = Family(family)
	e.NormalizationVisible = visible != 0
	return e, nil
}

func scanResult(sc scanner) (CandidateResult, error) {
	var (
		r                     CandidateResult
		roll                  sql.NullString
		correct, wrong        sql.NullInt64
		sectionsJSON          string
		raw, norm, zone, pctl sql.NullFloat64
		created               int64
	)
	if err := sc.Scan(&r.ID, &r.ExamID, &roll, &r.Name, &r.Category, &r.Gender, &r.State, &r.Zone,
		&r.SessionDate, &r.SessionShift, &correct, &wrong, &sectionsJSON,
		&raw, &norm, &zone, &pctl, &created); err != nil {
		return CandidateResult{}, err
	}
	r.RollNo = roll.String
	r.CorrectCount = intPtr(correct)
	r.WrongCount = intPtr(wrong)
	if sectionsJSON != "" {
		if err := json.Unmarshal([]byte(sectionsJSON), &r.Sections); err != nil {
			r.Sections = nil
		}
	}
	r.RawScore = floatPtr(raw)
	r.NormalizedScore = floatPtr(norm)
	r.ZoneNormalizedScore = floatPtr(zone)
	r.Percentile = floatPtr(pctl)
	r.CreatedAt = time.Unix(created, 0).UTC()
	return r, nil
}

func marshalSections(sections []Section) (string, error) {
	if len(sections) == 0 {
		return "", nil
	}
	buf, err := json.Marshal(sections)
	if err != nil {
		return "", err
	}
	return string(buf), nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullFloat(p *float64) sql.NullFloat64 {
	if p == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *p, Valid: true}
}

func nullInt(p *int) sql.NullInt64 {
	if p == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*p), Valid: true}
}

func floatPtr(n sql.NullFloat64) *float64 {
	if !n.Valid {
		return nil
	}
	v := n.Float64
	return &v
}

func intPtr(n sql.NullInt64) *int {
	if !n.Valid {
		return nil
	}
	v := int(n.Int64)
	return &v
}
