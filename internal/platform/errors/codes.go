// Package errors provides structured error handling for examroom services.
package errors

import "google.golang.org/grpc/codes"

// Code is a machine-readable error code.
type Code string

const (
	// CodeUnknown represents an unknown error.
	CodeUnknown Code = "UNKNOWN"

	// Exam errors
	CodeExamNotFound       Code = "EXAM_NOT_FOUND"
	CodeExamStatusUnknown  Code = "EXAM_STATUS_UNKNOWN"
	CodeExamEmptyID        Code = "EXAM_EMPTY_ID"
	CodeExamEmptyClient    Code = "EXAM_EMPTY_CLIENT"
	CodeExamEmptyStudent   Code = "EXAM_EMPTY_STUDENT"
	CodeExamStaleSnapshot  Code = "EXAM_STALE_SNAPSHOT"
	CodeExamEntityCorrupt  Code = "EXAM_ENTITY_CORRUPT"
	CodeExamSessionMissing Code = "EXAM_SESSION_MISSING"

	// Segment errors
	CodeSegmentNotFound      Code = "SEGMENT_NOT_FOUND"
	CodeSegmentNotSatisfied  Code = "SEGMENT_NOT_SATISFIED"
	CodeSegmentEmptyKey      Code = "SEGMENT_EMPTY_KEY"
	CodeSegmentBadPosition   Code = "SEGMENT_BAD_POSITION"
	CodeSegmentAlreadyExited Code = "SEGMENT_ALREADY_EXITED"

	// Accommodation errors
	CodeAccommodationNotFound   Code = "ACCOMMODATION_NOT_FOUND"
	CodeAccommodationEmptyType  Code = "ACCOMMODATION_EMPTY_TYPE"
	CodeAccommodationEmptyCode  Code = "ACCOMMODATION_EMPTY_CODE"
	CodeApproverSessionMismatch Code = "APPROVER_SESSION_MISMATCH"

	// Field-test errors
	CodeFieldTestGroupEmptyKey Code = "FIELD_TEST_GROUP_EMPTY_KEY"

	// Storage errors
	CodeNotFound Code = "NOT_FOUND"
	CodeConflict Code = "CONFLICT"

	// History/filter errors
	CodeHistoryFilterInvalid Code = "HISTORY_FILTER_INVALID"

	// Messaging errors
	CodeOutboxEmptyTopic Code = "OUTBOX_EMPTY_TOPIC"
)

// GRPCCode maps domain codes to gRPC status codes.
func (c Code) GRPCCode() codes.Code {
	switch c {
	// InvalidArgument - validation failures, bad input
	case CodeExamEmptyID,
		CodeExamEmptyClient,
		CodeExamEmptyStudent,
		CodeExamStatusUnknown,
		CodeSegmentEmptyKey,
		CodeSegmentBadPosition,
		CodeAccommodationEmptyType,
		CodeAccommodationEmptyCode,
		CodeFieldTestGroupEmptyKey,
		CodeHistoryFilterInvalid,
		CodeOutboxEmptyTopic:
		return codes.InvalidArgument

	// FailedPrecondition - state doesn't allow operation
	case CodeSegmentNotSatisfied,
		CodeSegmentAlreadyExited,
		CodeApproverSessionMismatch,
		CodeExamSessionMissing:
		return codes.FailedPrecondition

	// NotFound - resource doesn't exist
	case CodeNotFound,
		CodeExamNotFound,
		CodeSegmentNotFound,
		CodeAccommodationNotFound:
		return codes.NotFound

	// Aborted - stale optimistic write
	case CodeConflict,
		CodeExamStaleSnapshot:
		return codes.Aborted

	// DataLoss - append-only invariants were violated upstream
	case CodeExamEntityCorrupt:
		return codes.DataLoss

	default:
		return codes.Internal
	}
}
