package chatsync

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

const (
	// DefaultMaxContentLength is the content ceiling in characters.
	DefaultMaxContentLength = 2000

	// MaxAttachments is the number of files a single message may carry.
	MaxAttachments = 10
)

var validate = validator.New(validator.WithRequiredStructEnabled())

type attachmentRule struct {
	URL string `validate:"required"`
}

// ValidateDraft checks a message body before it is sent and returns the
// trimmed content. maxLen <= 0 selects DefaultMaxContentLength.
func ValidateDraft(content string, attachments []Attachment, maxLen int) (string, error) {
	if maxLen <= 0 {
		maxLen = DefaultMaxContentLength
	}
	content = strings.TrimSpace(content)
	if content == "" && len(attachments) == 0 {
		return "", ErrEmptyMessage
	}
	if err := validate.Var(content, fmt.Sprintf("max=%d", maxLen)); err != nil {
		return "", WrapError(ErrorContentTooLong, fmt.Sprintf("content exceeds %d characters", maxLen), err)
	}
	if len(attachments) > MaxAttachments {
		return "", ErrTooManyAttachments
	}
	for i, a := range attachments {
		if err := validate.Struct(attachmentRule{URL: a.URL}); err != nil {
			return "", WrapError(ErrorInvalidMessage, fmt.Sprintf("attachment %d has no url", i), err)
		}
	}
	return content, nil
}
