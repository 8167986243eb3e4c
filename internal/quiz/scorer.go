// Package quiz grades submitted answer sets against a quiz's answer key.
package quiz

import "github.com/mind-engage/coursetrack/internal/catalog"

type Result struct {
	CorrectCount   int     `json:"correct_count"`
	TotalQuestions int     `json:"total_questions"`
	Percent        float64 `json:"percent"`
	Passed         bool    `json:"passed"`
}

// Score compares answers (question index -> selected option index) with the
// answer key. Missing answers count as incorrect. A quiz without questions
// scores 0 and never passes.
func Score(questions []catalog.Question, passingScore float64, answers map[int]int) Result {
	res := Result{TotalQuestions: len(questions)}
	if res.TotalQuestions == 0 {
		return res
	}
	for i, q := range questions {
		if sel, ok := answers[i]; ok && sel == q.CorrectAnswer {
			res.CorrectCount++
		}
	}
	res.Percent = 100 * float64(res.CorrectCount) / float64(res.TotalQuestions)
	res.Passed = res.Percent >= passingScore
	return res
}

func ScoreQuiz(q catalog.Quiz, answers map[int]int) Result {
	return Score(q.Questions, q.PassingScore, answers)
}
