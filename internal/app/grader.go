package app

import (
	"math"
	"strconv"
	"strings"

	"town-challenge-service/internal/domain"
)

// answerTolerance absorbs floating-point input noise in numeric answers.
const answerTolerance = 0.01

// GradeOne checks a single submitted value against the stored problem.
// Numeric answers compare within answerTolerance; everything else compares
// by exact (whitespace-trimmed) equality.
func GradeOne(problem domain.Problem, submitted string) bool {
	want := strings.TrimSpace(problem.Answer)
	got := strings.TrimSpace(submitted)

	wantNum, wantErr := strconv.ParseFloat(want, 64)
	gotNum, gotErr := strconv.ParseFloat(got, 64)
	if wantErr == nil && gotErr == nil {
		return math.Abs(wantNum-gotNum) <= answerTolerance
	}
	return want == got
}

// GradeSession grades the stored problem set against the stored answers.
// Problems without a submitted answer count as unanswered, never correct.
func GradeSession(problems []domain.Problem, answers map[int]string) domain.GradeResult {
	result := domain.GradeResult{PerProblem: make([]bool, len(problems))}
	for i, problem := range problems {
		value, ok := answers[i]
		if !ok {
			continue
		}
		result.TotalAnswered++
		if GradeOne(problem, value) {
			result.PerProblem[i] = true
			result.CorrectCount++
		}
	}
	return result
}
