package onboarding

import (
	"github.com/MrEshboboyev/newsletter/message"
)

// RegisterMessages registers every onboarding command and event with the
// given registry so envelopes can be decoded back to typed messages.
func RegisterMessages(r *message.Registry) {
	factories := []message.Factory{
		func() message.Message { return &SubscribeToNewsletter{} },
		func() message.Message { return &SubscriberCreated{} },
		func() message.Message { return &SendWelcomeEmail{} },
		func() message.Message { return &WelcomeEmailSent{} },
		func() message.Message { return &SendWelcomeEmailFaulted{} },
		func() message.Message { return &SendFollowUpEmail{} },
		func() message.Message { return &FollowUpEmailSent{} },
		func() message.Message { return &SendFollowUpEmailFaulted{} },
		func() message.Message { return &OnboardingCompleted{} },
		func() message.Message { return &CompleteProfile{} },
		func() message.Message { return &ProfileCompleted{} },
		func() message.Message { return &ProfileCompletionFaulted{} },
		func() message.Message { return &SelectPreferences{} },
		func() message.Message { return &PreferencesSelected{} },
		func() message.Message { return &PreferencesSelectionFaulted{} },
		func() message.Message { return &SendWelcomePackage{} },
		func() message.Message { return &WelcomePackageSent{} },
		func() message.Message { return &WelcomePackageSendFaulted{} },
		func() message.Message { return &ScheduleEngagementEmail{} },
		func() message.Message { return &EngagementEmailScheduled{} },
		func() message.Message { return &EngagementEmailScheduleFaulted{} },
		func() message.Message { return &CompensateProfileCompletion{} },
		func() message.Message { return &CompensatePreferencesSelection{} },
	}
	for _, f := range factories {
		r.Register(f)
	}
}
