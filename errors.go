package meetsync

import "errors"

// Mutation validation failures. These are raised synchronously before any
// write is issued, so a caller seeing one of them knows nothing was
// partially applied.
var (
	// ErrChangeConflict means the target meeting could not be identified
	// (missing id) before a mutation.
	ErrChangeConflict = errors.New("meetsync: meeting changed or cannot be identified")

	// ErrDetailsModificationDenied means a permission gate failed for a
	// specific field change.
	ErrDetailsModificationDenied = errors.New("meetsync: not allowed to modify meeting details")

	// ErrCancelForbidden means a non-owner/scheduler attempted an outright
	// cancel rather than a self-removal.
	ErrCancelForbidden = errors.New("meetsync: not allowed to cancel this meeting")

	// ErrMultipleSchedulers means a sanitized participant set ended up with
	// zero or more than one Scheduler-role participant.
	ErrMultipleSchedulers = errors.New("meetsync: meeting must have exactly one scheduler")

	// ErrMeetingWithYourself means the only participant is the acting
	// account itself.
	ErrMeetingWithYourself = errors.New("meetsync: meeting with yourself")

	// ErrMeetingCreation means the participant set is otherwise too small
	// to form a meeting.
	ErrMeetingCreation = errors.New("meetsync: unable to create meeting")

	// ErrParticipantLookup means the account-by-email collaborator returned
	// an invalid result, as opposed to a valid empty one.
	ErrParticipantLookup = errors.New("meetsync: participant account lookup failed")

	// ErrStaleVersion means a mutation targeted a slot whose version moved
	// underneath it.
	ErrStaleVersion = errors.New("meetsync: slot version is stale")
)
