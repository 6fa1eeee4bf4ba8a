package domain

import "errors"

var (
	ErrUnknownStage   = errors.New("unknown timing stage")
	ErrInvalidChannel = errors.New("invalid notification channel")
)

// ErrorCode classifies why an obligation did not fully deliver.
type ErrorCode string

const (
	CodeProviderSend        ErrorCode = "provider_send"
	CodeAdapterConstruction ErrorCode = "adapter_construction"
	CodeResolution          ErrorCode = "resolution"
	CodeInternal            ErrorCode = "internal"
)

// ErrorDetails is stored as JSON alongside a finished obligation.
type ErrorDetails struct {
	Code        ErrorCode `json:"code"`
	Message     string    `json:"message"`
	Channel     Channel   `json:"channel,omitempty"`
	BatchErrors []string  `json:"batch_errors,omitempty"`
}
