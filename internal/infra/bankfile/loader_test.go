package bankfile

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"town-challenge-service/internal/domain"
)

const mathBank = `
easy:
  - id: e1
    prompt: "What is 2 + 2?"
    answer: "4"
    explanation: "2 + 2 = 4"
  - id: e2
    prompt: "What is 5 - 3?"
    answer: "2"
hard:
  - id: h1
    prompt: "What is 23 x 17?"
    answer: "391"
`

func writeBank(t *testing.T, name, content string) string {
	t.Helper()
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o600); err != nil {
		t.Fatalf("write bank file: %v", err)
	}
	return dir
}

func TestLoaderReadsBuckets(t *testing.T) {
	loader := NewLoader(writeBank(t, "math.yaml", mathBank))
	ctx := context.Background()

	problems, err := loader.LoadBucket(ctx, "math", domain.DifficultyEasy)
	if err != nil {
		t.Fatalf("load easy: %v", err)
	}
	if len(problems) != 2 {
		t.Fatalf("expected 2 problems, got %d", len(problems))
	}
	if problems[0].Prompt != "What is 2 + 2?" || problems[0].Answer != "4" {
		t.Fatalf("unexpected problem %+v", problems[0])
	}
	if problems[0].Explanation != "2 + 2 = 4" {
		t.Fatalf("expected explanation, got %+v", problems[0])
	}

	hard, err := loader.LoadBucket(ctx, "math", domain.DifficultyHard)
	if err != nil || len(hard) != 1 {
		t.Fatalf("load hard: problems=%v err=%v", hard, err)
	}
}

func TestLoaderMissingBucket(t *testing.T) {
	loader := NewLoader(writeBank(t, "math.yaml", mathBank))
	ctx := context.Background()

	if _, err := loader.LoadBucket(ctx, "math", domain.DifficultyExtreme); !errors.Is(err, domain.ErrChallengeNotFound) {
		t.Fatalf("expected challenge not found for absent tier, got %v", err)
	}
	if _, err := loader.LoadBucket(ctx, "chess", domain.DifficultyEasy); !errors.Is(err, domain.ErrChallengeNotFound) {
		t.Fatalf("expected challenge not found for absent file, got %v", err)
	}
}

func TestLoaderRejectsMalformedYAML(t *testing.T) {
	loader := NewLoader(writeBank(t, "math.yaml", "easy: [broken"))
	if _, err := loader.LoadBucket(context.Background(), "math", domain.DifficultyEasy); err == nil {
		t.Fatalf("expected parse error")
	}
}
