package core

// error_messages.go maps technical errors to messages with support codes.
//
// # Error Codes Reference
//
// # Database Errors (DB001-DB007)
//
//	DB001 - Duplicate key: A regulation with this key already exists
//	        Patterns: "duplicate key"
//	DB002 - Unique constraint: Patterns: "unique constraint", "violates unique"
//	DB003 - Foreign key: Patterns: "foreign key constraint", "violates foreign key"
//	DB004 - Connection failed: Patterns: "database connection failed", "connection refused"
//	DB005 - Connection reset: Patterns: "connection reset"
//	DB006 - Timeout: Patterns: "timeout"
//	DB007 - Deadlock: Patterns: "deadlock"
//
// # Validation Errors (VAL001-VAL004)
//
//	VAL001 - Rule catalog: Patterns: "rule catalog"
//	VAL002 - Batch format: Patterns: "invalid batch", "batch must be"
//	VAL003 - Required field: Patterns: "required field"
//	VAL004 - Pattern mismatch: Patterns: "does not match pattern"
//
// # Ingest Outcomes (ING001-ING004)
//
//	ING001 - No valid records: Patterns: "no valid records"
//	ING002 - Entity has no records: Patterns: "no records found for entity"
//	ING003 - All duplicates: Patterns: "after duplicate validation"
//	ING004 - Duplicate conflict: Patterns: "were duplicates and skipped"
//
// # Run Errors (RUN001-RUN004)
//
//	RUN001 - Busy: Patterns: "too many concurrent runs"
//	RUN002 - Locked: Patterns: "is locked"
//	RUN003 - Cancelled: Patterns: "context canceled"
//	RUN004 - Deadline: Patterns: "context deadline exceeded"
//
// # General (ERR000)
//
//	ERR000 - Unexpected error, check the logs for the technical error.

import (
	"fmt"
	"strings"
)

// UserMessage contains a user-friendly error message with actionable guidance.
type UserMessage struct {
	Message string // What happened
	Action  string // What to do about it
	Code    string // Error code for support reference
}

type errorPattern struct {
	pattern string
	msg     UserMessage
}

// errorPatterns are matched case-insensitively with strings.Contains. The
// first match wins, so specific patterns come before general ones.
var errorPatterns = []errorPattern{
	// Ingest outcomes come first: their messages mention duplicates too.
	{
		pattern: "no valid records",
		msg: UserMessage{
			Message: "No record in the batch passed validation",
			Action:  "Review the rejected rows in the run log",
			Code:    "ING001",
		},
	},
	{
		pattern: "no records found for entity",
		msg: UserMessage{
			Message: "The batch has no records for the configured entity",
			Action:  "Check the entity field of the scraped records",
			Code:    "ING002",
		},
	},
	{
		pattern: "after duplicate validation",
		msg: UserMessage{
			Message: "Every record in the batch is already stored",
			Action:  "No action needed",
			Code:    "ING003",
		},
	},
	{
		pattern: "were duplicates and skipped",
		msg: UserMessage{
			Message: "A concurrent run stored some of these records first",
			Action:  "Run the batch again to pick up anything left over",
			Code:    "ING004",
		},
	},

	{
		pattern: "duplicate key",
		msg: UserMessage{
			Message: "A regulation with this key already exists",
			Action:  "Check for concurrent runs of the same entity",
			Code:    "DB001",
		},
	},
	{
		pattern: "unique constraint",
		msg: UserMessage{
			Message: "This value must be unique but already exists",
			Action:  "Check for duplicate entries in the batch",
			Code:    "DB002",
		},
	},
	{
		pattern: "violates unique",
		msg: UserMessage{
			Message: "A duplicate value was found",
			Action:  "Review the batch for duplicate key values",
			Code:    "DB002",
		},
	},
	{
		pattern: "foreign key constraint",
		msg: UserMessage{
			Message: "Referenced record does not exist",
			Action:  "Ensure the component exists before linking",
			Code:    "DB003",
		},
	},
	{
		pattern: "violates foreign key",
		msg: UserMessage{
			Message: "Referenced record does not exist",
			Action:  "Ensure the component exists before linking",
			Code:    "DB003",
		},
	},
	{
		pattern: "database connection failed",
		msg: UserMessage{
			Message: "Unable to connect to database",
			Action:  "Check DATABASE_URL and try again",
			Code:    "DB004",
		},
	},
	{
		pattern: "connection refused",
		msg: UserMessage{
			Message: "Unable to connect to database",
			Action:  "Please try again in a few moments",
			Code:    "DB004",
		},
	},
	{
		pattern: "connection reset",
		msg: UserMessage{
			Message: "Database connection was interrupted",
			Action:  "Please try again",
			Code:    "DB005",
		},
	},
	{
		pattern: "timeout",
		msg: UserMessage{
			Message: "Operation timed out",
			Action:  "Try a smaller batch or try again later",
			Code:    "DB006",
		},
	},
	{
		pattern: "deadlock",
		msg: UserMessage{
			Message: "Database was busy with conflicting operations",
			Action:  "Please try again",
			Code:    "DB007",
		},
	},

	{
		pattern: "rule catalog",
		msg: UserMessage{
			Message: "The validation rule catalog is invalid",
			Action:  "Fix INGEST_RULES_PATH or remove it to use the built-in rules",
			Code:    "VAL001",
		},
	},
	{
		pattern: "invalid batch",
		msg: UserMessage{
			Message: "The batch could not be read",
			Action:  "Send a JSON array of objects or a CSV file with a header row",
			Code:    "VAL002",
		},
	},
	{
		pattern: "batch must be",
		msg: UserMessage{
			Message: "The batch could not be read",
			Action:  "Send a JSON array of objects or a CSV file with a header row",
			Code:    "VAL002",
		},
	},
	{
		pattern: "required field",
		msg: UserMessage{
			Message: "Required field is empty",
			Action:  "Ensure all required fields have values",
			Code:    "VAL003",
		},
	},
	{
		pattern: "does not match pattern",
		msg: UserMessage{
			Message: "A value does not have the expected format",
			Action:  "Check the field against the rule catalog",
			Code:    "VAL004",
		},
	},

	{
		pattern: "too many concurrent runs",
		msg: UserMessage{
			Message: "System is busy processing other runs",
			Action:  "Please wait a moment and try again",
			Code:    "RUN001",
		},
	},
	{
		pattern: "is locked",
		msg: UserMessage{
			Message: "Another run for this entity is in progress",
			Action:  "Wait for it to finish and try again",
			Code:    "RUN002",
		},
	},
	{
		pattern: "context canceled",
		msg: UserMessage{
			Message: "Run was cancelled",
			Action:  "Please try again",
			Code:    "RUN003",
		},
	},
	{
		pattern: "context deadline exceeded",
		msg: UserMessage{
			Message: "Run timed out",
			Action:  "Raise INGEST_TIMEOUT or send a smaller batch",
			Code:    "RUN004",
		},
	},
}

// defaultMessage is returned when no pattern matches (ERR000).
var defaultMessage = UserMessage{
	Message: "An unexpected error occurred",
	Action:  "Please try again or contact support",
	Code:    "ERR000",
}

// MapError converts a technical error to a user-friendly message. If no
// pattern matches, the ERR000 fallback is returned.
func MapError(err error) UserMessage {
	if err == nil {
		return UserMessage{}
	}

	errStr := strings.ToLower(err.Error())

	for _, ep := range errorPatterns {
		if strings.Contains(errStr, ep.pattern) {
			return ep.msg
		}
	}

	return defaultMessage
}

// FormatUserError creates a formatted error string for display:
// "Message (Code: XXX). Action".
func FormatUserError(err error) string {
	msg := MapError(err)
	if msg.Message == "" {
		return ""
	}
	return fmt.Sprintf("%s (Code: %s). %s", msg.Message, msg.Code, msg.Action)
}

// IsUserFacing reports whether err matches a known pattern rather than the
// ERR000 fallback.
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}
	return MapError(err).Code != defaultMessage.Code
}
