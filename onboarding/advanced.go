package onboarding

import (
	"time"

	"github.com/MrEshboboyev/newsletter/message"
	"github.com/MrEshboboyev/newsletter/saga"
)

// Advanced workflow states. The advanced workflow shares StateFaulted with
// the basic one; the two never share a store, so the overlap is harmless.
const (
	StateAwaitingProfileCompletion    saga.State = "AwaitingProfileCompletion"
	StateAwaitingPreferencesSelection saga.State = "AwaitingPreferencesSelection"
	StateSendingWelcomePackage        saga.State = "SendingWelcomePackage"
	StateSchedulingEngagementEmail    saga.State = "SchedulingEngagementEmail"
	StateOnboardingCompleted          saga.State = "OnboardingCompleted"
	StateCompensating                 saga.State = "Compensating"
)

// AdvancedInstance is the accumulated data of one advanced onboarding
// attempt. Beyond the per-step tracking it carries the profile and
// preference data later steps need, and records which compensations ran.
type AdvancedInstance struct {
	Email     string   `json:"email"`
	FirstName string   `json:"first_name,omitempty"`
	LastName  string   `json:"last_name,omitempty"`
	Topics    []string `json:"topics,omitempty"`

	ProfileCompletedAt           *time.Time `json:"profile_completed_at,omitempty"`
	ProfileCompletionFaulted     bool       `json:"profile_completion_faulted"`
	ProfileCompletionFaultReason string     `json:"profile_completion_fault_reason,omitempty"`

	PreferencesSelectedAt           *time.Time `json:"preferences_selected_at,omitempty"`
	PreferencesSelectionFaulted     bool       `json:"preferences_selection_faulted"`
	PreferencesSelectionFaultReason string     `json:"preferences_selection_fault_reason,omitempty"`

	WelcomePackageSentAt          *time.Time `json:"welcome_package_sent_at,omitempty"`
	WelcomePackageSendFaulted     bool       `json:"welcome_package_send_faulted"`
	WelcomePackageSendFaultReason string     `json:"welcome_package_send_fault_reason,omitempty"`

	EngagementEmailScheduledAt         *time.Time `json:"engagement_email_scheduled_at,omitempty"`
	EngagementEmailScheduleFaulted     bool       `json:"engagement_email_schedule_faulted"`
	EngagementEmailScheduleFaultReason string     `json:"engagement_email_schedule_fault_reason,omitempty"`

	ProfileCompensated       bool       `json:"profile_compensated"`
	ProfileCompensatedAt     *time.Time `json:"profile_compensated_at,omitempty"`
	PreferencesCompensated   bool       `json:"preferences_compensated"`
	PreferencesCompensatedAt *time.Time `json:"preferences_compensated_at,omitempty"`

	OnboardingCompleted   bool       `json:"onboarding_completed"`
	OnboardingCompletedAt *time.Time `json:"onboarding_completed_at,omitempty"`
}

// AdvancedName identifies the advanced workflow in logs, metrics, and
// storage.
const AdvancedName = "advanced-newsletter-onboarding"

// AdvancedDefinition declares the advanced onboarding workflow:
//
//	Initial → AwaitingProfileCompletion → AwaitingPreferencesSelection
//	        → SendingWelcomePackage → SchedulingEngagementEmail
//	        → OnboardingCompleted
//
// A fault after a successful step moves through Compensating, which
// publishes a compensating command for the preceding step and lands in
// Faulted once that command comes back around. Compensation is forward-only
// and best-effort: the compensating command is guaranteed published, not
// guaranteed to succeed, and a failed compensation is never compensated in
// turn.
//
// engagementDelay is how far in the future the engagement email is
// scheduled when the welcome package goes out.
func AdvancedDefinition(engagementDelay time.Duration) *saga.Definition[AdvancedInstance] {
	return &saga.Definition[AdvancedInstance]{
		Name: AdvancedName,
		New:  func() *AdvancedInstance { return &AdvancedInstance{} },
		Transitions: map[saga.State]map[string]saga.Transition[AdvancedInstance]{
			saga.Initial: {
				NameSubscriberCreated: {
					To: StateAwaitingProfileCompletion,
					Apply: func(d *AdvancedInstance, msg message.Message, _ time.Time) {
						d.Email = msg.(*SubscriberCreated).Email
					},
					// No command is published here: profile completion
					// is initiated by the subscriber, not the engine.
				},
			},
			StateAwaitingProfileCompletion: {
				NameProfileCompleted: {
					To: StateAwaitingPreferencesSelection,
					Apply: func(d *AdvancedInstance, msg message.Message, now time.Time) {
						if d.ProfileCompletedAt != nil {
							return
						}
						m := msg.(*ProfileCompleted)
						d.FirstName = m.FirstName
						d.LastName = m.LastName
						d.ProfileCompletedAt = &now
					},
				},
				NameProfileCompletionFaulted: {
					To:    StateFaulted,
					Fault: true,
					Apply: func(d *AdvancedInstance, msg message.Message, _ time.Time) {
						d.ProfileCompletionFaulted = true
						d.ProfileCompletionFaultReason = msg.(*ProfileCompletionFaulted).Reason
					},
					// First step: nothing to compensate.
				},
			},
			StateAwaitingPreferencesSelection: {
				NamePreferencesSelected: {
					To: StateSendingWelcomePackage,
					Apply: func(d *AdvancedInstance, msg message.Message, now time.Time) {
						if d.PreferencesSelectedAt != nil {
							return
						}
						d.Topics = msg.(*PreferencesSelected).Topics
						d.PreferencesSelectedAt = &now
					},
					Emit: func(d *AdvancedInstance, msg message.Message, _ time.Time) []message.Message {
						return []message.Message{SendWelcomePackage{
							SubscriberID: msg.Correlation(),
							Email:        d.Email,
							FirstName:    d.FirstName,
							LastName:     d.LastName,
							Topics:       d.Topics,
						}}
					},
				},
				NamePreferencesSelectionFaulted: {
					To:    StateCompensating,
					Fault: true,
					Apply: func(d *AdvancedInstance, msg message.Message, _ time.Time) {
						d.PreferencesSelectionFaulted = true
						d.PreferencesSelectionFaultReason = msg.(*PreferencesSelectionFaulted).Reason
					},
					Emit: func(d *AdvancedInstance, msg message.Message, _ time.Time) []message.Message {
						return []message.Message{CompensateProfileCompletion{
							SubscriberID: msg.Correlation(),
							Email:        d.Email,
						}}
					},
				},
			},
			StateSendingWelcomePackage: {
				NameWelcomePackageSent: {
					To: StateSchedulingEngagementEmail,
					Apply: func(d *AdvancedInstance, _ message.Message, now time.Time) {
						if d.WelcomePackageSentAt != nil {
							return
						}
						d.WelcomePackageSentAt = &now
					},
					Emit: func(d *AdvancedInstance, msg message.Message, now time.Time) []message.Message {
						return []message.Message{ScheduleEngagementEmail{
							SubscriberID: msg.Correlation(),
							Email:        d.Email,
							ScheduledAt:  now.Add(engagementDelay),
						}}
					},
				},
				NameWelcomePackageSendFaulted: {
					To:    StateCompensating,
					Fault: true,
					Apply: func(d *AdvancedInstance, msg message.Message, _ time.Time) {
						d.WelcomePackageSendFaulted = true
						d.WelcomePackageSendFaultReason = msg.(*WelcomePackageSendFaulted).Reason
					},
					Emit: func(d *AdvancedInstance, msg message.Message, _ time.Time) []message.Message {
						return []message.Message{CompensatePreferencesSelection{
							SubscriberID: msg.Correlation(),
							Email:        d.Email,
						}}
					},
				},
			},
			StateSchedulingEngagementEmail: {
				NameEngagementEmailScheduled: {
					To:       StateOnboardingCompleted,
					Complete: true,
					Apply: func(d *AdvancedInstance, _ message.Message, now time.Time) {
						if d.OnboardingCompleted {
							return
						}
						d.EngagementEmailScheduledAt = &now
						d.OnboardingCompleted = true
						d.OnboardingCompletedAt = &now
					},
					Emit: func(d *AdvancedInstance, msg message.Message, _ time.Time) []message.Message {
						return []message.Message{OnboardingCompleted{
							SubscriberID: msg.Correlation(),
							Email:        d.Email,
						}}
					},
				},
				NameEngagementEmailScheduleFaulted: {
					To:    StateFaulted,
					Fault: true,
					Apply: func(d *AdvancedInstance, msg message.Message, _ time.Time) {
						d.EngagementEmailScheduleFaulted = true
						d.EngagementEmailScheduleFaultReason = msg.(*EngagementEmailScheduleFaulted).Reason
					},
					// Last step: the package already went out, but the
					// observed behavior parks the instance without
					// compensating it.
				},
			},
			// The saga consumes its own compensating commands alongside the
			// compensation handlers: the handler undoes the side effect,
			// the saga records that compensation was issued and parks the
			// instance in Faulted.
			StateCompensating: {
				NameCompensateProfileCompletion: {
					To: StateFaulted,
					Apply: func(d *AdvancedInstance, _ message.Message, now time.Time) {
						if d.ProfileCompensated {
							return
						}
						d.ProfileCompensated = true
						d.ProfileCompensatedAt = &now
					},
				},
				NameCompensatePreferencesSelection: {
					To: StateFaulted,
					Apply: func(d *AdvancedInstance, _ message.Message, now time.Time) {
						if d.PreferencesCompensated {
							return
						}
						d.PreferencesCompensated = true
						d.PreferencesCompensatedAt = &now
					},
				},
			},
		},
		TerminalStates: []saga.State{StateOnboardingCompleted, StateFaulted},
	}
}
