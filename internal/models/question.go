package models

import "time"

type QuestionType string

const (
	QuestionTypeMultiChoice QuestionType = "MultiChoice"
	QuestionTypeBinary      QuestionType = "BinaryQuestion"
)

type QuestionOption struct {
	ID     int64  `json:"id"`
	Option string `json:"option"`
	IsLeft bool   `json:"isLeft"`
}

// Question is one entry of the daily deck, immutable once fetched.
// DurationMiliseconds keeps the backend's spelling.
type Question struct {
	ID                  int64            `json:"id"`
	Question            string           `json:"question"`
	Type                QuestionType     `json:"type"`
	DurationMiliseconds int64            `json:"durationMiliseconds"`
	ImageURL            string           `json:"imageUrl,omitempty"`
	DeckID              *int64           `json:"deckId,omitempty"`
	Options             []QuestionOption `json:"questionOptions"`
}

func (q *Question) Duration() time.Duration {
	return time.Duration(q.DurationMiliseconds) * time.Millisecond
}

func (q *Question) OptionByID(id int64) *QuestionOption {
	for i := range q.Options {
		if q.Options[i].ID == id {
			return &q.Options[i]
		}
	}
	return nil
}
