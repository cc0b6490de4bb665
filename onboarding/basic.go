package onboarding

import (
	"time"

	"github.com/MrEshboboyev/newsletter/message"
	"github.com/MrEshboboyev/newsletter/saga"
)

// Basic workflow states.
const (
	StateWelcoming   saga.State = "Welcoming"
	StateFollowingUp saga.State = "FollowingUp"
	StateOnboarding  saga.State = "Onboarding"
	StateFaulted     saga.State = "Faulted"
)

// BasicInstance is the accumulated data of one basic onboarding attempt:
// subscriber identity plus per-step done/fault tracking. Every "done" field
// is set at most once; redelivered success events must not move timestamps.
type BasicInstance struct {
	Email string `json:"email"`

	WelcomeEmailSent        bool       `json:"welcome_email_sent"`
	WelcomeEmailSentAt      *time.Time `json:"welcome_email_sent_at,omitempty"`
	WelcomeEmailFaulted     bool       `json:"welcome_email_faulted"`
	WelcomeEmailFaultReason string     `json:"welcome_email_fault_reason,omitempty"`

	FollowUpEmailSent        bool       `json:"follow_up_email_sent"`
	FollowUpEmailSentAt      *time.Time `json:"follow_up_email_sent_at,omitempty"`
	FollowUpEmailFaulted     bool       `json:"follow_up_email_faulted"`
	FollowUpEmailFaultReason string     `json:"follow_up_email_fault_reason,omitempty"`

	OnboardingCompleted   bool       `json:"onboarding_completed"`
	OnboardingCompletedAt *time.Time `json:"onboarding_completed_at,omitempty"`
}

// BasicName identifies the basic workflow in logs, metrics, and storage.
const BasicName = "newsletter-onboarding"

// BasicDefinition declares the basic onboarding workflow:
//
//	Initial → Welcoming → FollowingUp → Onboarding
//
// with Faulted reachable from Welcoming and FollowingUp. Onboarding and
// Faulted are terminal.
func BasicDefinition() *saga.Definition[BasicInstance] {
	return &saga.Definition[BasicInstance]{
		Name: BasicName,
		New:  func() *BasicInstance { return &BasicInstance{} },
		Transitions: map[saga.State]map[string]saga.Transition[BasicInstance]{
			saga.Initial: {
				NameSubscriberCreated: {
					To: StateWelcoming,
					Apply: func(d *BasicInstance, msg message.Message, _ time.Time) {
						d.Email = msg.(*SubscriberCreated).Email
					},
					Emit: func(d *BasicInstance, msg message.Message, _ time.Time) []message.Message {
						return []message.Message{SendWelcomeEmail{
							SubscriberID: msg.Correlation(),
							Email:        d.Email,
						}}
					},
				},
			},
			StateWelcoming: {
				NameWelcomeEmailSent: {
					To: StateFollowingUp,
					Apply: func(d *BasicInstance, _ message.Message, now time.Time) {
						if d.WelcomeEmailSent {
							return
						}
						d.WelcomeEmailSent = true
						d.WelcomeEmailSentAt = &now
					},
					Emit: func(d *BasicInstance, msg message.Message, _ time.Time) []message.Message {
						return []message.Message{SendFollowUpEmail{
							SubscriberID: msg.Correlation(),
							Email:        d.Email,
						}}
					},
				},
				NameSendWelcomeEmailFaulted: {
					To:    StateFaulted,
					Fault: true,
					Apply: func(d *BasicInstance, msg message.Message, _ time.Time) {
						d.WelcomeEmailFaulted = true
						d.WelcomeEmailFaultReason = msg.(*SendWelcomeEmailFaulted).Reason
					},
				},
			},
			StateFollowingUp: {
				NameFollowUpEmailSent: {
					To:       StateOnboarding,
					Complete: true,
					Apply: func(d *BasicInstance, _ message.Message, now time.Time) {
						if d.FollowUpEmailSent {
							return
						}
						d.FollowUpEmailSent = true
						d.FollowUpEmailSentAt = &now
						d.OnboardingCompleted = true
						d.OnboardingCompletedAt = &now
					},
					Emit: func(d *BasicInstance, msg message.Message, _ time.Time) []message.Message {
						return []message.Message{OnboardingCompleted{
							SubscriberID: msg.Correlation(),
							Email:        d.Email,
						}}
					},
				},
				NameSendFollowUpEmailFaulted: {
					To:    StateFaulted,
					Fault: true,
					Apply: func(d *BasicInstance, msg message.Message, _ time.Time) {
						d.FollowUpEmailFaulted = true
						d.FollowUpEmailFaultReason = msg.(*SendFollowUpEmailFaulted).Reason
					},
				},
			},
		},
		TerminalStates: []saga.State{StateOnboarding, StateFaulted},
	}
}
