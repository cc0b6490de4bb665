package onboarding

import (
	"time"

	"github.com/MrEshboboyev/newsletter/id"
)

// Message names for the advanced workflow.
const (
	NameCompleteProfile                = "CompleteProfile"
	NameProfileCompleted               = "ProfileCompleted"
	NameProfileCompletionFaulted       = "ProfileCompletionFaulted"
	NameSelectPreferences              = "SelectPreferences"
	NamePreferencesSelected            = "PreferencesSelected"
	NamePreferencesSelectionFaulted    = "PreferencesSelectionFaulted"
	NameSendWelcomePackage             = "SendWelcomePackage"
	NameWelcomePackageSent             = "WelcomePackageSent"
	NameWelcomePackageSendFaulted      = "WelcomePackageSendFaulted"
	NameScheduleEngagementEmail        = "ScheduleEngagementEmail"
	NameEngagementEmailScheduled       = "EngagementEmailScheduled"
	NameEngagementEmailScheduleFaulted = "EngagementEmailScheduleFaulted"
	NameCompensateProfileCompletion    = "CompensateProfileCompletion"
	NameCompensatePreferencesSelection = "CompensatePreferencesSelection"
)

// CompleteProfile commands the profile completion step. It arrives from
// outside the engine (the subscriber supplies their name).
type CompleteProfile struct {
	SubscriberID id.SubscriberID `json:"subscriber_id"`
	Email        string          `json:"email"`
	FirstName    string          `json:"first_name"`
	LastName     string          `json:"last_name"`
}

func (m CompleteProfile) MessageName() string          { return NameCompleteProfile }
func (m CompleteProfile) Correlation() id.SubscriberID { return m.SubscriberID }

// ProfileCompleted reports the profile completion step succeeded.
type ProfileCompleted struct {
	SubscriberID id.SubscriberID `json:"subscriber_id"`
	Email        string          `json:"email"`
	FirstName    string          `json:"first_name"`
	LastName     string          `json:"last_name"`
}

func (m ProfileCompleted) MessageName() string          { return NameProfileCompleted }
func (m ProfileCompleted) Correlation() id.SubscriberID { return m.SubscriberID }

// ProfileCompletionFaulted reports the profile completion step failed.
type ProfileCompletionFaulted struct {
	SubscriberID id.SubscriberID `json:"subscriber_id"`
	Email        string          `json:"email"`
	Reason       string          `json:"reason"`
}

func (m ProfileCompletionFaulted) MessageName() string          { return NameProfileCompletionFaulted }
func (m ProfileCompletionFaulted) Correlation() id.SubscriberID { return m.SubscriberID }
func (m ProfileCompletionFaulted) FaultReason() string          { return m.Reason }

// SelectPreferences commands the preference selection step. It arrives from
// outside the engine (the subscriber picks their topics).
type SelectPreferences struct {
	SubscriberID id.SubscriberID `json:"subscriber_id"`
	Email        string          `json:"email"`
	Topics       []string        `json:"topics"`
}

func (m SelectPreferences) MessageName() string          { return NameSelectPreferences }
func (m SelectPreferences) Correlation() id.SubscriberID { return m.SubscriberID }

// PreferencesSelected reports the preference selection step succeeded.
type PreferencesSelected struct {
	SubscriberID id.SubscriberID `json:"subscriber_id"`
	Email        string          `json:"email"`
	Topics       []string        `json:"topics"`
}

func (m PreferencesSelected) MessageName() string          { return NamePreferencesSelected }
func (m PreferencesSelected) Correlation() id.SubscriberID { return m.SubscriberID }

// PreferencesSelectionFaulted reports the preference selection step failed.
type PreferencesSelectionFaulted struct {
	SubscriberID id.SubscriberID `json:"subscriber_id"`
	Email        string          `json:"email"`
	Reason       string          `json:"reason"`
}

func (m PreferencesSelectionFaulted) MessageName() string          { return NamePreferencesSelectionFaulted }
func (m PreferencesSelectionFaulted) Correlation() id.SubscriberID { return m.SubscriberID }
func (m PreferencesSelectionFaulted) FaultReason() string          { return m.Reason }

// SendWelcomePackage commands the welcome package step. It carries the data
// the saga accumulated from profile completion and preference selection.
type SendWelcomePackage struct {
	SubscriberID id.SubscriberID `json:"subscriber_id"`
	Email        string          `json:"email"`
	FirstName    string          `json:"first_name"`
	LastName     string          `json:"last_name"`
	Topics       []string        `json:"topics"`
}

func (m SendWelcomePackage) MessageName() string          { return NameSendWelcomePackage }
func (m SendWelcomePackage) Correlation() id.SubscriberID { return m.SubscriberID }

// WelcomePackageSent reports the welcome package step succeeded.
type WelcomePackageSent struct {
	SubscriberID id.SubscriberID `json:"subscriber_id"`
	Email        string          `json:"email"`
}

func (m WelcomePackageSent) MessageName() string          { return NameWelcomePackageSent }
func (m WelcomePackageSent) Correlation() id.SubscriberID { return m.SubscriberID }

// WelcomePackageSendFaulted reports the welcome package step failed.
type WelcomePackageSendFaulted struct {
	SubscriberID id.SubscriberID `json:"subscriber_id"`
	Email        string          `json:"email"`
	Reason       string          `json:"reason"`
}

func (m WelcomePackageSendFaulted) MessageName() string          { return NameWelcomePackageSendFaulted }
func (m WelcomePackageSendFaulted) Correlation() id.SubscriberID { return m.SubscriberID }
func (m WelcomePackageSendFaulted) FaultReason() string          { return m.Reason }

// ScheduleEngagementEmail commands the engagement email scheduling step.
type ScheduleEngagementEmail struct {
	SubscriberID id.SubscriberID `json:"subscriber_id"`
	Email        string          `json:"email"`
	ScheduledAt  time.Time       `json:"scheduled_at"`
}

func (m ScheduleEngagementEmail) MessageName() string          { return NameScheduleEngagementEmail }
func (m ScheduleEngagementEmail) Correlation() id.SubscriberID { return m.SubscriberID }

// EngagementEmailScheduled reports the engagement email was scheduled.
type EngagementEmailScheduled struct {
	SubscriberID id.SubscriberID `json:"subscriber_id"`
	Email        string          `json:"email"`
	ScheduledAt  time.Time       `json:"scheduled_at"`
}

func (m EngagementEmailScheduled) MessageName() string          { return NameEngagementEmailScheduled }
func (m EngagementEmailScheduled) Correlation() id.SubscriberID { return m.SubscriberID }

// EngagementEmailScheduleFaulted reports the scheduling step failed.
type EngagementEmailScheduleFaulted struct {
	SubscriberID id.SubscriberID `json:"subscriber_id"`
	Email        string          `json:"email"`
	Reason       string          `json:"reason"`
}

func (m EngagementEmailScheduleFaulted) MessageName() string {
	return NameEngagementEmailScheduleFaulted
}
func (m EngagementEmailScheduleFaulted) Correlation() id.SubscriberID { return m.SubscriberID }
func (m EngagementEmailScheduleFaulted) FaultReason() string          { return m.Reason }

// CompensateProfileCompletion commands the undo of a completed profile after
// a later step faulted. Consumed by both the compensation handler and the
// saga itself, which records the compensation and parks the instance.
type CompensateProfileCompletion struct {
	SubscriberID id.SubscriberID `json:"subscriber_id"`
	Email        string          `json:"email"`
}

func (m CompensateProfileCompletion) MessageName() string          { return NameCompensateProfileCompletion }
func (m CompensateProfileCompletion) Correlation() id.SubscriberID { return m.SubscriberID }

// CompensatePreferencesSelection commands the undo of selected preferences
// after a later step faulted.
type CompensatePreferencesSelection struct {
	SubscriberID id.SubscriberID `json:"subscriber_id"`
	Email        string          `json:"email"`
}

func (m CompensatePreferencesSelection) MessageName() string {
	return NameCompensatePreferencesSelection
}
func (m CompensatePreferencesSelection) Correlation() id.SubscriberID { return m.SubscriberID }
