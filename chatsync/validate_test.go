package chatsync

import (
	"errors"
	"strings"
	"testing"
)

func TestValidateDraft(t *testing.T) {
	tests := []struct {
		name        string
		content     string
		attachments []Attachment
		maxLen      int
		want        string
		wantErr     error
	}{
		{name: "Trimmed", content: "  hi  ", want: "hi"},
		{name: "Empty", content: "   ", wantErr: ErrEmptyMessage},
		{name: "AttachmentOnly", attachments: []Attachment{{URL: "https://cdn/x.png"}}, want: ""},
		{name: "AtCeiling", content: strings.Repeat("a", 5), maxLen: 5, want: "aaaaa"},
		{name: "TooLong", content: strings.Repeat("a", 6), maxLen: 5, wantErr: ErrContentTooLong},
		{name: "RunesNotBytes", content: strings.Repeat("é", 5), maxLen: 5, want: strings.Repeat("é", 5)},
		{name: "DefaultCeiling", content: strings.Repeat("a", DefaultMaxContentLength+1), wantErr: ErrContentTooLong},
		{name: "TooManyAttachments", content: "x", attachments: make([]Attachment, MaxAttachments+1), wantErr: ErrTooManyAttachments},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ValidateDraft(tt.content, tt.attachments, tt.maxLen)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("got error %v, want %v", err, tt.wantErr)
				}
				if !IsValidationError(err) {
					t.Errorf("IsValidationError(%v) = false", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestValidateDraftAttachmentWithoutURL(t *testing.T) {
	_, err := ValidateDraft("hi", []Attachment{{Filename: "a.txt"}}, 0)
	var se *Error
	if !errors.As(err, &se) || se.Code != ErrorInvalidMessage {
		t.Fatalf("got %v, want invalid message error", err)
	}
}

func TestErrorCodes(t *testing.T) {
	if ErrorNotConnected.String() != "not_connected" {
		t.Errorf("unexpected code string %q", ErrorNotConnected.String())
	}
	if ParseErrorCode("rate_limited") != ErrorRateLimited {
		t.Errorf("rate_limited did not parse")
	}
	wrapped := WrapError(ErrorConnection, "dial", errors.New("refused"))
	if !IsConnectionError(wrapped) || IsProtocolError(wrapped) {
		t.Errorf("misclassified %v", wrapped)
	}
	if errors.Is(ErrEmptyMessage, ErrContentTooLong) {
		t.Errorf("distinct sentinels compare equal")
	}
}
