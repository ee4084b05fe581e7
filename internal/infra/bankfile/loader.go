package bankfile

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"town-challenge-service/internal/domain"
)

// Loader reads problem banks from YAML files, one file per challenge type,
// with a top-level key per difficulty tier:
//
//	easy:
//	  - id: q1
//	    prompt: "What is 2 + 2?"
//	    answer: "4"
//
// Files are read per request; callers are expected to wrap this loader in a
// caching bank repository.
type Loader struct {
	dir string
}

func NewLoader(dir string) *Loader {
	return &Loader{dir: dir}
}

func (l *Loader) LoadBucket(_ context.Context, challengeType string, difficulty domain.Difficulty) ([]domain.Problem, error) {
	path := filepath.Join(l.dir, challengeType+".yaml")
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, domain.ErrChallengeNotFound
		}
		return nil, fmt.Errorf("read bank file %s: %w", path, err)
	}

	var bank map[domain.Difficulty][]domain.Problem
	if err := yaml.Unmarshal(data, &bank); err != nil {
		return nil, fmt.Errorf("parse bank file %s: %w", path, err)
	}
	problems, ok := bank[difficulty]
	if !ok || len(problems) == 0 {
		return nil, domain.ErrChallengeNotFound
	}
	return problems, nil
}
