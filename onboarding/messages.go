// Package onboarding defines the subscriber-onboarding workflows: the
// commands and events they exchange, the per-subscriber instance data they
// accumulate, and the two workflow definitions (basic and advanced) that
// the saga engine interprets.
package onboarding

import (
	"github.com/MrEshboboyev/newsletter/id"
)

// Message names for the basic workflow. Wire names are stable identifiers;
// renaming one is a breaking change for persisted outboxes and DLQ entries.
const (
	NameSubscribeToNewsletter    = "SubscribeToNewsletter"
	NameSubscriberCreated        = "SubscriberCreated"
	NameSendWelcomeEmail         = "SendWelcomeEmail"
	NameWelcomeEmailSent         = "WelcomeEmailSent"
	NameSendWelcomeEmailFaulted  = "SendWelcomeEmailFaulted"
	NameSendFollowUpEmail        = "SendFollowUpEmail"
	NameFollowUpEmailSent        = "FollowUpEmailSent"
	NameSendFollowUpEmailFaulted = "SendFollowUpEmailFaulted"
	NameOnboardingCompleted      = "OnboardingCompleted"
)

// SubscribeToNewsletter asks the intake consumer to register a subscriber.
// The subscriber id is assigned by the caller before publishing, so the
// whole onboarding attempt shares one correlation id from the first message.
type SubscribeToNewsletter struct {
	SubscriberID id.SubscriberID `json:"subscriber_id"`
	Email        string          `json:"email"`
}

func (m SubscribeToNewsletter) MessageName() string          { return NameSubscribeToNewsletter }
func (m SubscribeToNewsletter) Correlation() id.SubscriberID { return m.SubscriberID }

// SubscriberCreated announces a newly registered subscriber. It is the
// triggering event for both workflows.
type SubscriberCreated struct {
	SubscriberID id.SubscriberID `json:"subscriber_id"`
	Email        string          `json:"email"`
}

func (m SubscriberCreated) MessageName() string          { return NameSubscriberCreated }
func (m SubscriberCreated) Correlation() id.SubscriberID { return m.SubscriberID }

// SendWelcomeEmail commands the welcome email step.
type SendWelcomeEmail struct {
	SubscriberID id.SubscriberID `json:"subscriber_id"`
	Email        string          `json:"email"`
}

func (m SendWelcomeEmail) MessageName() string          { return NameSendWelcomeEmail }
func (m SendWelcomeEmail) Correlation() id.SubscriberID { return m.SubscriberID }

// WelcomeEmailSent reports the welcome email step succeeded.
type WelcomeEmailSent struct {
	SubscriberID id.SubscriberID `json:"subscriber_id"`
	Email        string          `json:"email"`
}

func (m WelcomeEmailSent) MessageName() string          { return NameWelcomeEmailSent }
func (m WelcomeEmailSent) Correlation() id.SubscriberID { return m.SubscriberID }

// SendWelcomeEmailFaulted reports the welcome email step failed.
type SendWelcomeEmailFaulted struct {
	SubscriberID id.SubscriberID `json:"subscriber_id"`
	Email        string          `json:"email"`
	Reason       string          `json:"reason"`
}

func (m SendWelcomeEmailFaulted) MessageName() string          { return NameSendWelcomeEmailFaulted }
func (m SendWelcomeEmailFaulted) Correlation() id.SubscriberID { return m.SubscriberID }
func (m SendWelcomeEmailFaulted) FaultReason() string          { return m.Reason }

// SendFollowUpEmail commands the follow-up email step.
type SendFollowUpEmail struct {
	SubscriberID id.SubscriberID `json:"subscriber_id"`
	Email        string          `json:"email"`
}

func (m SendFollowUpEmail) MessageName() string          { return NameSendFollowUpEmail }
func (m SendFollowUpEmail) Correlation() id.SubscriberID { return m.SubscriberID }

// FollowUpEmailSent reports the follow-up email step succeeded.
type FollowUpEmailSent struct {
	SubscriberID id.SubscriberID `json:"subscriber_id"`
	Email        string          `json:"email"`
}

func (m FollowUpEmailSent) MessageName() string          { return NameFollowUpEmailSent }
func (m FollowUpEmailSent) Correlation() id.SubscriberID { return m.SubscriberID }

// SendFollowUpEmailFaulted reports the follow-up email step failed.
type SendFollowUpEmailFaulted struct {
	SubscriberID id.SubscriberID `json:"subscriber_id"`
	Email        string          `json:"email"`
	Reason       string          `json:"reason"`
}

func (m SendFollowUpEmailFaulted) MessageName() string          { return NameSendFollowUpEmailFaulted }
func (m SendFollowUpEmailFaulted) Correlation() id.SubscriberID { return m.SubscriberID }
func (m SendFollowUpEmailFaulted) FaultReason() string          { return m.Reason }

// OnboardingCompleted announces that a subscriber finished onboarding.
// Published by both workflows on their success path.
type OnboardingCompleted struct {
	SubscriberID id.SubscriberID `json:"subscriber_id"`
	Email        string          `json:"email"`
}

func (m OnboardingCompleted) MessageName() string          { return NameOnboardingCompleted }
func (m OnboardingCompleted) Correlation() id.SubscriberID { return m.SubscriberID }
