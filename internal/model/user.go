package model

import "time"

// Subscription tiers stored in users.subscription_tier.  "free" is the
// trial tier; paying customers are "basic" or "premium".
const (
    TierFree    = "free"
    TierBasic   = "basic"
    TierPremium = "premium"
)

// Subscription statuses stored in users.subscription_status.
const (
    SubscriptionActive   = "active"
    SubscriptionInactive = "inactive"
    SubscriptionLapsed   = "lapsed"
)

// User represents an account holder together with their entitlement
// state.  The entitlement fields are mutated only by the trial guard (on
// trial start) and by the billing webhook handler; everything else treats
// them as read-only.  This struct corresponds to a row in the `users`
// table.
//
// Fields:
//  ID                 – primary key identifier.
//  Email              – lowercased unique email address.
//  PasswordHash       – bcrypt hash of the password.
//  Role               – account role (READER or ADMIN).
//  IsActive           – whether the account may authenticate.
//  FreeTrialUsed      – true once a free trial has ever been started.
//  FreeTrialStartedAt – when the trial began (nil if never).
//  FreeTrialEndedAt   – when the trial ends/ended (nil if never started).
//  SubscriptionTier   – free, basic or premium.
//  SubscriptionStatus – active, inactive or lapsed.
//  CreatedAt          – creation timestamp.
//  UpdatedAt          – last update timestamp.
type User struct {
    ID                 uint64     // users.id
    Email              string     // users.email
    PasswordHash       string     // users.password_hash
    Role               string     // users.role
    IsActive           bool       // users.is_active
    FreeTrialUsed      bool       // users.free_trial_used
    FreeTrialStartedAt *time.Time // users.free_trial_started_at (nullable)
    FreeTrialEndedAt   *time.Time // users.free_trial_ended_at (nullable)
    SubscriptionTier   string     // users.subscription_tier
    SubscriptionStatus string     // users.subscription_status
    CreatedAt          time.Time  // users.created_at
    UpdatedAt          time.Time  // users.updated_at
}

// Entitled reports whether the user currently holds a subscription or
// trial that permits borrowing.  A free-tier user is entitled only while
// their trial window is open.
func (u *User) Entitled(now time.Time) bool {
    if u.SubscriptionStatus != SubscriptionActive {
        return false
    }
    if u.SubscriptionTier == TierFree {
        return u.FreeTrialEndedAt != nil && now.Before(*u.FreeTrialEndedAt)
    }
    return true
}
