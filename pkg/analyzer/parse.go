package analyzer

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"go-screening-backend/internal/domain"
	"go-screening-backend/internal/scoring"

	"github.com/google/uuid"
)

// decodeJSON accepts a bare JSON object or one wrapped in a markdown fence
// or surrounding prose.
func decodeJSON(raw string, out any) error {
	s := strings.TrimSpace(raw)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	}
	start := strings.IndexByte(s, '{')
	end := strings.LastIndexByte(s, '}')
	if start < 0 || end <= start {
		return errors.New("analyzer reply contains no JSON object")
	}
	if err := json.Unmarshal([]byte(s[start:end+1]), out); err != nil {
		return fmt.Errorf("decode analyzer reply: %w", err)
	}
	return nil
}

type profileJSON struct {
	Name            string   `json:"name"`
	Email           string   `json:"email"`
	YearsExperience float64  `json:"years_experience"`
	Skills          []string `json:"skills"`
	Location        string   `json:"location"`
}

func (p profileJSON) toDomain() *domain.Profile {
	years := p.YearsExperience
	if years < 0 {
		years = 0
	}
	return &domain.Profile{
		Name:            strings.TrimSpace(p.Name),
		Email:           strings.ToLower(strings.TrimSpace(p.Email)),
		YearsExperience: years,
		Skills:          dedupe(p.Skills),
		Location:        strings.TrimSpace(p.Location),
	}
}

type analysisJSON struct {
	Skills         int      `json:"skills"`
	Experience     int      `json:"experience"`
	Trust          int      `json:"trust"`
	Education      int      `json:"education"`
	Projects       int      `json:"projects"`
	Summary        string   `json:"summary"`
	Strengths      []string `json:"strengths"`
	Concerns       []string `json:"concerns"`
	MatchedSkills  []string `json:"matched_skills"`
	MissingSkills  []string `json:"missing_skills"`
	BonusSkills    []string `json:"bonus_skills"`
	TrustFlags     []string `json:"trust_flags"`
	UnmetQuestions []string `json:"unmet_question_ids"`
}

// toDomain clamps scores into 0..100 and keeps only unmet ids that name one
// of the job's custom questions.
func (a analysisJSON) toDomain(job *domain.Job) *domain.AnalyzerResult {
	var unmet []string
	for _, id := range a.UnmetQuestions {
		qid, err := uuid.Parse(strings.TrimSpace(id))
		if err != nil {
			continue
		}
		if _, ok := job.CustomQuestion(qid); ok {
			unmet = append(unmet, qid.String())
		}
	}
	return &domain.AnalyzerResult{
		Dimensions: scoring.ClampDimensions(domain.DimensionScores{
			Skills:     a.Skills,
			Experience: a.Experience,
			Trust:      a.Trust,
			Education:  a.Education,
			Projects:   a.Projects,
		}),
		Summary:   strings.TrimSpace(a.Summary),
		Strengths: nonEmpty(a.Strengths),
		Concerns:  nonEmpty(a.Concerns),
		SkillMatch: domain.SkillMatch{
			Matched: dedupe(a.MatchedSkills),
			Missing: dedupe(a.MissingSkills),
			Bonus:   dedupe(a.BonusSkills),
		},
		TrustFlags:    nonEmpty(a.TrustFlags),
		UnmetCriteria: unmet,
	}
}

type evaluationJSON struct {
	Depth       int    `json:"depth"`
	Specificity int    `json:"specificity"`
	Relevance   int    `json:"relevance"`
	Technical   int    `json:"technical"`
	Authorship  string `json:"authorship"`
	Notes       string `json:"notes"`
}

func (e evaluationJSON) toDomain() *domain.ResponseEvaluation {
	verdict, ok := domain.ParseAuthorshipVerdict(e.Authorship)
	if !ok {
		// unknown verdicts are treated as assisted, not as human
		verdict = domain.AuthorAIAssisted
	}
	return &domain.ResponseEvaluation{
		Depth:       scoring.Clamp(e.Depth),
		Specificity: scoring.Clamp(e.Specificity),
		Relevance:   scoring.Clamp(e.Relevance),
		Technical:   scoring.Clamp(e.Technical),
		Authorship:  verdict,
		Notes:       strings.TrimSpace(e.Notes),
	}
}

func nonEmpty(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// dedupe trims and removes case-insensitive duplicates, keeping first spelling.
func dedupe(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		s = strings.TrimSpace(s)
		k := strings.ToLower(s)
		if s == "" || seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, s)
	}
	return out
}
