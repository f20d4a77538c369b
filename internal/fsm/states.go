package fsm

const (
	StateNew                       = "new"
	StateMenu                      = "menu"
	StateAwaitingFirstOrderAnswer  = "awaiting_first_order_answer"
	StateAwaitingSecondOrderAnswer = "awaiting_second_order_answer"
	StateRevealPrompt              = "reveal_prompt"
	StateEmailCollection           = "email_collection"
	StateEmailVerification         = "email_verification"
)
