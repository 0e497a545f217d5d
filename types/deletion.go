package types

import "net/http"

type DeletionStatus string

const (
	DeletionStatusSucceeded       DeletionStatus = "Succeeded"
	DeletionStatusFailedHttp      DeletionStatus = "FailedHttp"
	DeletionStatusFailedException DeletionStatus = "FailedException"
)

func (status DeletionStatus) IsValidDeletionStatus() bool {
	switch status {
	case DeletionStatusSucceeded,
		DeletionStatusFailedHttp,
		DeletionStatusFailedException:
		return true
	default:
		return false
	}
}

type DeletionOutcome struct {
	Resource   Resource
	Status     DeletionStatus
	StatusCode int
	Err        error
}

func (outcome DeletionOutcome) Succeeded() bool {
	return outcome.Status == DeletionStatusSucceeded
}

// IsSuccessfulDeleteStatus reports whether a terminal delete status counts as a deletion.
func IsSuccessfulDeleteStatus(statusCode int) bool {
	return statusCode == http.StatusOK || statusCode == http.StatusNoContent
}
