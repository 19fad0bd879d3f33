package engine

import (
	"context"
	"fmt"

	"meetsync"
)

// ParseParticipants turns a provider attendee list into internal
// participants. Every attendee with an email is looked up against known
// accounts (case-insensitively): each matched account gets its own
// participant record, an unmatched email becomes a guest participant, and
// attendees without an email are dropped.
//
// A nil map from the lookup collaborator is a broken collaborator, not an
// empty result, and fails with ErrParticipantLookup.
func (e *Engine) ParseParticipants(ctx context.Context, attendees []meetsync.Attendee) ([]meetsync.Participant, error) {
	emails := make([]string, 0, len(attendees))
	for _, a := range attendees {
		if a.Email != "" {
			emails = append(emails, lower(a.Email))
		}
	}

	accounts, err := e.store.AccountsByEmail(ctx, emails)
	if err != nil {
		return nil, fmt.Errorf("engine: accounts by email: %w", err)
	}
	if accounts == nil {
		return nil, meetsync.ErrParticipantLookup
	}

	var participants []meetsync.Participant
	for _, a := range attendees {
		if a.Email == "" {
			continue
		}
		rsvp := a.RSVP
		if rsvp == "" {
			rsvp = meetsync.RSVPPending
		}
		matched := accounts[lower(a.Email)]
		if len(matched) == 0 {
			participants = append(participants, meetsync.Participant{
				GuestEmail: lower(a.Email),
				Name:       a.Name,
				Role:       meetsync.RoleInvitee,
				RSVP:       rsvp,
			})
			continue
		}
		for _, acc := range matched {
			participants = append(participants, meetsync.Participant{
				AccountAddress: acc.Address,
				GuestEmail:     lower(a.Email),
				Name:           acc.DisplayName,
				Role:           meetsync.RoleInvitee,
				RSVP:           rsvp,
			})
		}
	}
	return participants, nil
}

// SanitizeParticipants deduplicates a proposed participant set and
// enforces the structural invariants: at least two parties, and exactly
// one of them holding the Scheduler role.
func SanitizeParticipants(participants []meetsync.Participant, actorKey string) ([]meetsync.Participant, error) {
	seen := make(map[string]bool, len(participants))
	sanitized := make([]meetsync.Participant, 0, len(participants))
	for _, p := range participants {
		key := p.Key()
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		sanitized = append(sanitized, p)
	}

	if len(sanitized) == 1 {
		if sanitized[0].Key() == actorKey {
			return nil, meetsync.ErrMeetingWithYourself
		}
		return nil, meetsync.ErrMeetingCreation
	}
	if len(sanitized) == 0 {
		return nil, meetsync.ErrMeetingCreation
	}

	schedulers := 0
	for _, p := range sanitized {
		if p.Role == meetsync.RoleScheduler {
			schedulers++
		}
	}
	if schedulers != 1 {
		return nil, meetsync.ErrMultipleSchedulers
	}
	return sanitized, nil
}
