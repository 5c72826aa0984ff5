package content

import "github.com/customeros/mailgovernor/internal/models"

type seedWord struct {
	word     string
	category string
	score    int
}

var defaultWords = []seedWord{
	{"act now", "urgency", 5},
	{"urgent", "urgency", 4},
	{"limited time", "urgency", 4},
	{"expires today", "urgency", 4},
	{"don't delete", "urgency", 3},
	{"immediately", "urgency", 2},
	{"last chance", "urgency", 4},
	{"free", "marketing", 5},
	{"100% free", "marketing", 6},
	{"no cost", "marketing", 4},
	{"bonus", "marketing", 3},
	{"buy now", "marketing", 5},
	{"click here", "marketing", 5},
	{"order now", "marketing", 4},
	{"special promotion", "marketing", 4},
	{"winner", "marketing", 5},
	{"congratulations", "marketing", 4},
	{"money", "financial", 4},
	{"cash", "financial", 4},
	{"make money", "financial", 6},
	{"earn extra", "financial", 5},
	{"double your", "financial", 5},
	{"no credit check", "financial", 6},
	{"lowest price", "financial", 3},
	{"investment", "financial", 2},
	{"risk free", "financial", 5},
	{"guarantee", "financial", 3},
	{"verify your account", "phishing", 6},
	{"confirm your password", "phishing", 7},
	{"account suspended", "phishing", 6},
	{"wire transfer", "phishing", 5},
	{"bank details", "phishing", 5},
	{"miracle", "health", 4},
	{"weight loss", "health", 4},
	{"lose weight", "health", 4},
	{"viagra", "adult", 8},
	{"dear friend", "generic", 3},
	{"this is not spam", "generic", 6},
	{"as seen on", "generic", 3},
}

// DefaultSpamWords is the dictionary installed by the seed command.
func DefaultSpamWords() []models.SpamWord {
	out := make([]models.SpamWord, len(defaultWords))
	for i, w := range defaultWords {
		out[i] = models.SpamWord{Word: w.word, Category: w.category, Score: w.score, Active: true}
	}
	return out
}
