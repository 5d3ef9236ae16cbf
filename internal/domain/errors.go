package domain

// ErrorCode is the machine-readable reason carried by an error event.
type ErrorCode string

const (
	ErrRateLimited                    ErrorCode = "RATE_LIMITED"
	ErrInvalidInput                   ErrorCode = "INVALID_INPUT"
	ErrNotAProduct                    ErrorCode = "NOT_A_PRODUCT"
	ErrNoReviews                      ErrorCode = "NO_REVIEWS"
	ErrInsufficientUserReviewEvidence ErrorCode = "INSUFFICIENT_USER_REVIEW_EVIDENCE"
	ErrSTTFailed                      ErrorCode = "STT_FAILED"
	ErrServiceUnavailable             ErrorCode = "SERVICE_UNAVAILABLE"
	ErrUnknown                        ErrorCode = "UNKNOWN"
)

var baseMessages = map[ErrorCode]string{
	ErrNotAProduct:                    "Ask about any product review or comparison (phone, laptop, TV, earbuds, etc).",
	ErrNoReviews:                      "This product doesn't have enough reviews yet. Try another popular product.",
	ErrInsufficientUserReviewEvidence: "Not enough user-review evidence. Try another product.",
	ErrRateLimited:                    "Daily query limit reached",
	ErrSTTFailed:                      "Failed to transcribe audio",
	ErrServiceUnavailable:             "Unable to process request right now. Please try again in a moment.",
	ErrInvalidInput:                   "Input is invalid.",
	ErrUnknown:                        "Unknown error.",
}

// Message returns the English message for the code.
func (c ErrorCode) Message() string {
	if msg, ok := baseMessages[c]; ok {
		return msg
	}
	return baseMessages[ErrUnknown]
}
