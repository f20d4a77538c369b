package models

// EmailVerification is a pending OTP ticket issued by the auth provider.
type EmailVerification struct {
	Email            string `json:"email"`
	VerificationUUID string `json:"verificationUUID"`
	Verified         bool   `json:"verified"`
}

// Session is the per-user transient bag. Every piece of conversation state
// lives here, keyed by telegram user id in the session store; there is no
// unkeyed fallback anywhere.
type Session struct {
	State           string             `json:"state"`
	User            *User              `json:"user,omitempty"`
	Question        *Question          `json:"question,omitempty"`
	Verification    *EmailVerification `json:"verification,omitempty"`
	PromptMessageID int                `json:"promptMessageId,omitempty"`
	AnswerElapsedMs int64              `json:"answerElapsedMs,omitempty"`
}
