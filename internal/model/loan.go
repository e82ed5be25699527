package model

import "time"

// Loan statuses.  A loan is created ACTIVE and moves exactly once to
// RETURNED (reader-initiated) or REVOKED (system-initiated); both are
// terminal.
const (
    LoanActive   = "active"
    LoanReturned = "returned"
    LoanRevoked  = "revoked"
)

// Loan types record which entitlement the loan was issued under.
const (
    LoanTypeSubscription = "subscription"
    LoanTypeTrial        = "trial"
)

// Loan represents one book checked out by a user.  Only loans in the
// active status count against the per-user concurrent loan cap.  This
// struct corresponds to a row in the `loans` table.
//
// Fields:
//  ID           – primary key identifier.
//  UserID       – owning user; loans are never transferred.
//  BookID       – the borrowed book.
//  Status       – active, returned or revoked.
//  LoanType     – subscription or trial.
//  StartedAt    – when the loan was created.
//  ReturnedAt   – set when the reader returned the book (nullable).
//  RevokedAt    – set when the system revoked the loan (nullable).
//  RevokeReason – why the loan was revoked, e.g. subscription lapse (nullable).
type Loan struct {
    ID           uint64     `json:"id"`            // loans.id
    UserID       uint64     `json:"user_id"`       // loans.user_id
    BookID       uint64     `json:"book_id"`       // loans.book_id
    Status       string     `json:"status"`        // loans.status
    LoanType     string     `json:"loan_type"`     // loans.loan_type
    StartedAt    time.Time  `json:"started_at"`    // loans.started_at
    ReturnedAt   *time.Time `json:"returned_at,omitempty"`   // loans.returned_at (nullable)
    RevokedAt    *time.Time `json:"revoked_at,omitempty"`    // loans.revoked_at (nullable)
    RevokeReason *string    `json:"revoke_reason,omitempty"` // loans.revoke_reason (nullable)
}
