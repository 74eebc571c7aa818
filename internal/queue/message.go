package queue

import (
	"fmt"
	"strings"
)

// RetryTaskMessage is the broker payload instructing a worker to execute
// one retry attempt.
type RetryTaskMessage struct {
	TransactionID string `json:"transactionId"`
	AttemptID     string `json:"attemptId"`
	AttemptNumber int    `json:"attemptNumber"`
	InitiatedBy   string `json:"initiatedBy"`
	Reason        string `json:"reason,omitempty"`
	CorrelationID string `json:"correlationId,omitempty"`
}

func (m RetryTaskMessage) Validate() error {
	if strings.TrimSpace(m.TransactionID) == "" {
		return fmt.Errorf("transactionId is required")
	}
	if strings.TrimSpace(m.AttemptID) == "" {
		return fmt.Errorf("attemptId is required")
	}
	if m.AttemptNumber < 1 {
		return fmt.Errorf("attemptNumber must be at least 1")
	}
	return nil
}
