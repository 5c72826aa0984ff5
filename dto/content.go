package dto

import "github.com/customeros/mailgovernor/internal/enum"

type ContentInput struct {
	Subject string `json:"subject"`
	Body    string `json:"body"`
	// optional HTML rendition; Body is parsed as HTML when this is empty and Body looks like markup
	HTML string `json:"html,omitempty"`
}

type ContentAnalysisResult struct {
	Score                int                       `json:"score"`
	SpamRisk             int                       `json:"spamRisk"`
	DeliverabilityRating enum.DeliverabilityRating `json:"deliverabilityRating"`
	Triggers             []string                  `json:"triggers"`
	Suggestions          []string                  `json:"suggestions"`
	Stats                ContentStats              `json:"stats"`
}

type ContentStats struct {
	Words          int     `json:"words"`
	Letters        int     `json:"letters"`
	CapsRatio      float64 `json:"capsRatio"`
	Exclamations   int     `json:"exclamations"`
	Links          int     `json:"links"`
	Images         int     `json:"images"`
	DictionaryHits int     `json:"dictionaryHits"`
}
