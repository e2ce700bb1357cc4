package analyzer

import (
	"fmt"
	"strings"

	"go-screening-backend/internal/domain"
)

const maxPromptResume = 30000

func profilePrompt(resumeText string) string {
	return fmt.Sprintf(`You extract structured data from resumes.

Return ONLY a JSON object with this shape:
{"name": string, "email": string, "years_experience": number, "skills": [string], "location": string}

Use empty values when a field is not present. Count years of professional experience only.

RESUME:
%s`, clip(resumeText, maxPromptResume))
}

func analysisPrompt(in domain.AnalyzeInput) string {
	job := in.Job
	var b strings.Builder

	b.WriteString("You are a senior technical recruiter screening a resume against a job.\n\n")
	fmt.Fprintf(&b, "JOB TITLE: %s\n", job.Title)
	fmt.Fprintf(&b, "JOB DESCRIPTION:\n%s\n\n", clip(job.Description, 8000))
	fmt.Fprintf(&b, "REQUIRED SKILLS: %s\n", strings.Join(job.RequiredSkills, ", "))
	fmt.Fprintf(&b, "NICE TO HAVE: %s\n\n", strings.Join(job.NiceToHaveSkills, ", "))

	if len(job.CustomQuestions) > 0 {
		b.WriteString("RECRUITER CRITERIA (id: text). List the ids the resume gives no evidence for in unmet_question_ids:\n")
		for _, q := range job.CustomQuestions {
			fmt.Fprintf(&b, "- %s: %s\n", q.ID, q.Text)
		}
		b.WriteString("\n")
	}

	if p := in.Profile; p != nil {
		fmt.Fprintf(&b, "EXTRACTED PROFILE: name=%q years_experience=%.1f skills=%s\n\n",
			p.Name, p.YearsExperience, strings.Join(p.Skills, ", "))
	}

	b.WriteString(`Score each dimension from 0 to 100:
- skills: coverage of the required skills, with credit for nice-to-have skills
- experience: relevance and seniority of professional experience
- trust: internal consistency of dates, titles and claims; lower it for vague, inflated or contradictory claims and list the reasons in trust_flags
- education: relevance of formal education and certifications
- projects: depth and ownership shown in concrete projects

Return ONLY a JSON object with this shape:
{"skills": int, "experience": int, "trust": int, "education": int, "projects": int,
 "summary": string, "strengths": [string], "concerns": [string],
 "matched_skills": [string], "missing_skills": [string], "bonus_skills": [string],
 "trust_flags": [string], "unmet_question_ids": [string]}

RESUME:
`)
	b.WriteString(clip(in.ResumeText, maxPromptResume))
	return b.String()
}

func evaluationPrompt(job *domain.Job, q domain.VerixQuestion, answer string) string {
	title := ""
	if job != nil {
		title = job.Title
	}
	return fmt.Sprintf(`You verify a job candidate's written answer to a follow-up question about their resume.

JOB TITLE: %s
QUESTION: %s
ANSWER:
%s

Score from 0 to 100:
- depth: how far the answer goes beyond surface statements
- specificity: concrete names, numbers, decisions and outcomes
- relevance: how directly it answers the question
- technical: correctness and sophistication of technical content

Judge authorship as one of "human", "ai_assisted", "ai_generated".

Return ONLY a JSON object with this shape:
{"depth": int, "specificity": int, "relevance": int, "technical": int, "authorship": string, "notes": string}`,
		title, q.Text, clip(answer, 6000))
}

func clip(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
