package exam

import "time"

// Family selects the normalization algorithm for an exam.
type Family string

const (
	FamilySSC     Family = "SSC"
	FamilyRailway Family = "Railway"
	FamilyBanking Family = "Banking"
)

// ManualSession is the session label stored for submissions without portal info.
const ManualSession = "Manual"

type Exam struct {
	ID               string  `json:"id"`
	Name             string  `json:"name"`
	Family           Family  `json:"family"`
	QuestionCount    int     `json:"question_count"`
	MarksPerQuestion float64 `json:"marks_per_question"`
	NegativeMarks    float64 `json:"negative_marks"`
	TotalMarks       float64 `json:"total_marks"`

	// NormalizationVisible gates whether normalized figures reach candidates
	// and whether submissions trigger recomputation.
	NormalizationVisible bool `json:"normalization_visible"`

	CreatedAt int64 `json:"created_at,omitempty"`
}

// Section is the per-section correctness summary produced by the result scraper.
type Section struct {
	Name    string `json:"name"`
	Correct int    `json:"correct"`
	Wrong   int    `json:"wrong"`
}

// CandidateResult is one row per (exam, candidate). Score fields are nil until
// computed; only NormalizedScore, ZoneNormalizedScore and Percentile are written
// by a normalization run.
type CandidateResult struct {
	ID       string `json:"id"`
	ExamID   string `json:"exam_id"`
	RollNo   string `json:"roll_no,omitempty"`
	Name     string `json:"name,omitempty"`
	Category string `json:"category,omitempty"`
	Gender   string `json:"gender,omitempty"`
	State    string `json:"state,omitempty"`
	Zone     string `json:"zone,omitempty"`

	SessionDate  string `json:"exam_date"`
	SessionShift string `json:"exam_shift"`

	CorrectCount *int      `json:"correct_count,omitempty"`
	WrongCount   *int      `json:"wrong_count,omitempty"`
	Sections     []Section `json:"sections,omitempty"`

	RawScore            *float64 `json:"raw_score,omitempty"`
	NormalizedScore     *float64 `json:"normalized_score,omitempty"`
	ZoneNormalizedScore *float64 `json:"zone_normalized_score,omitempty"`
	Percentile          *float64 `json:"percentile,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// SessionKey identifies a sitting of the exam.
type SessionKey struct {
	Date  string
	Shift string
}

func (k SessionKey) String() string { return k.Date + "_" + k.Shift }

// ScoreRow is the validated projection of a CandidateResult that normalization consumes.
type ScoreRow struct {
	ID       string
	RawScore float64
	Session  SessionKey
	Zone     string
	Category string
}

// ResultSet is the population fetched for one normalization run. Skipped holds
// ids of rows excluded because they lack fields the algorithms require.
type ResultSet struct {
	Rows    []ScoreRow
	Skipped []string
}

// NormalizationUpdate carries the only fields a normalization run may overwrite.
type NormalizationUpdate struct {
	ID                  string
	NormalizedScore     *float64
	Percentile          *float64
	ZoneNormalizedScore *float64
	// SetZone controls whether ZoneNormalizedScore is written (Railway runs).
	SetZone bool
}

// RankBand is an admin-entered score range with its predicted rank range.
type RankBand struct {
	ID                int64   `json:"id,omitempty"`
	ExamID            string  `json:"exam_id"`
	MinScore          float64 `json:"min_score"`
	MaxScore          float64 `json:"max_score"`
	MinRank           int     `json:"min_rank"`
	MaxRank           int     `json:"max_rank"`
	CutoffProbability string  `json:"cutoff_probability"`
}

// ScoreBasis selects which score column a standing is ranked on.
type ScoreBasis string

const (
	BasisRaw        ScoreBasis = "raw"
	BasisNormalized ScoreBasis = "normalized"
)

// Scope filters the population for a rank query. Empty fields do not filter.
type Scope struct {
	Category string
	Zone     string
	Session  *SessionKey
	Basis    ScoreBasis
}

// RankCount answers a rank query: Count rows in scope, Above of which score strictly higher.
type RankCount struct {
	Count int
	Above int
}
