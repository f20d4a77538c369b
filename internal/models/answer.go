package models

// Answer is the submission payload for a completed round. Option ids are
// carried through callback payloads, never option text.
type Answer struct {
	QuestionID              int64  `json:"questionId"`
	OptionID                int64  `json:"optionId"`
	PercentageGiven         int    `json:"percentageGiven"`
	TimeToAnswerMiliseconds int64  `json:"timeToAnswerMiliseconds"`
	DeckID                  *int64 `json:"deckId,omitempty"`
}
