package repositorytest

import (
	"context"
	"sort"

	"github.com/customeros/mailgovernor/internal/models"
	"github.com/customeros/mailgovernor/internal/repository"
	"github.com/customeros/mailgovernor/internal/utils"
)

type spamWordRepo struct{ s *Store }

func (r *spamWordRepo) List(_ context.Context, activeOnly bool) ([]models.SpamWord, error) {
	defer r.s.mu.Unlock()
	if err := r.s.lock(); err != nil {
		return nil, err
	}
	out := []models.SpamWord{}
	for _, w := range r.s.spamWords {
		if activeOnly && !w.Active {
			continue
		}
		out = append(out, *w)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Word < out[j].Word })
	return out, nil
}

func (r *spamWordRepo) GetByID(_ context.Context, id string) (*models.SpamWord, error) {
	defer r.s.mu.Unlock()
	if err := r.s.lock(); err != nil {
		return nil, err
	}
	w, ok := r.s.spamWords[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	out := *w
	return &out, nil
}

func (r *spamWordRepo) Create(_ context.Context, word *models.SpamWord) error {
	defer r.s.mu.Unlock()
	if err := r.s.lock(); err != nil {
		return err
	}
	return r.insert(word)
}

func (r *spamWordRepo) insert(word *models.SpamWord) error {
	for _, w := range r.s.spamWords {
		if w.Word == word.Word {
			return repository.ErrAlreadyExists
		}
	}
	if word.ID == "" {
		word.ID = utils.GenerateNanoIDWithPrefix("sw", 16)
	}
	now := r.s.clock()
	word.CreatedAt, word.UpdatedAt = now, now
	stored := *word
	r.s.spamWords[word.ID] = &stored
	return nil
}

func (r *spamWordRepo) Update(_ context.Context, id string, update repository.SpamWordUpdate) (*models.SpamWord, error) {
	defer r.s.mu.Unlock()
	if err := r.s.lock(); err != nil {
		return nil, err
	}
	w, ok := r.s.spamWords[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	if update.Category != nil {
		w.Category = *update.Category
	}
	if update.Score != nil {
		w.Score = *update.Score
	}
	if update.Active != nil {
		w.Active = *update.Active
	}
	w.UpdatedAt = r.s.clock()
	out := *w
	return &out, nil
}

func (r *spamWordRepo) Seed(_ context.Context, words []models.SpamWord) (int64, error) {
	defer r.s.mu.Unlock()
	if err := r.s.lock(); err != nil {
		return 0, err
	}
	var n int64
	for i := range words {
		w := words[i]
		if err := r.insert(&w); err == nil {
			n++
		}
	}
	return n, nil
}
