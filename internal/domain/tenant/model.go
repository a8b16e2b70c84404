// Package tenant holds the tenant and subscription entities.
package tenant

import "time"

// SubscriptionStatus is the lifecycle state of a Subscription.
type SubscriptionStatus string

const (
	SubscriptionActive  SubscriptionStatus = "active"
	SubscriptionExpired SubscriptionStatus = "expired"
)

// Subscription caps the resources a Tenant may use.
type Subscription struct {
	ID            string
	TenantID      string
	Status        SubscriptionStatus
	MaxSessions   int
	MaxGroups     int
	MaxAds        int
	GroupInterval time.Duration
	StartDate     time.Time
	EndDate       time.Time
}

// Tenant is the engine's customer: owns sessions, groups (transitively), and ads.
type Tenant struct {
	ID              string
	Name            string
	BrandAdEnabled  bool
	BrandAdText     string
	UsePriorityGrps bool
	Subscription    *Subscription
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// PaymentStatus is the lifecycle state of a Payment.
type PaymentStatus string

const (
	PaymentPending  PaymentStatus = "pending"
	PaymentApproved PaymentStatus = "approved"
	PaymentExpired  PaymentStatus = "expired"
	PaymentRejected PaymentStatus = "rejected"
)

// Payment is a tenant's pending or settled subscription payment.
type Payment struct {
	ID        string
	TenantID  string
	Status    PaymentStatus
	AmountDue int64
	CreatedAt time.Time
	UpdatedAt time.Time
}
