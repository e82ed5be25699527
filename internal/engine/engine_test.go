package engine

// Shared fixtures for the engine tests.  All tests run against a mocked
// database and a frozen clock so window math and cap decisions are
// deterministic.

import (
    "database/sql"
    "testing"
    "time"

    "github.com/DATA-DOG/go-sqlmock"
    "github.com/stretchr/testify/require"

    "github.com/inkstream/inkstream-server/internal/model"
)

// testNow is the frozen instant every engine test runs at.
var testNow = time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

func fixedClock() func() time.Time {
    return func() time.Time { return testNow }
}

func newMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
    t.Helper()
    db, mock, err := sqlmock.New()
    require.NoError(t, err)
    t.Cleanup(func() {
        require.NoError(t, mock.ExpectationsWereMet())
        _ = db.Close()
    })
    return db, mock
}

// userTestColumns mirrors the repository's SELECT list for users.
var userTestColumns = []string{
    "id", "email", "password_hash", "role", "is_active",
    "free_trial_used", "free_trial_started_at", "free_trial_ended_at",
    "subscription_tier", "subscription_status", "created_at", "updated_at",
}

// premiumUserRow builds a row for an entitled premium subscriber.
func premiumUserRow(id uint64) *sqlmock.Rows {
    return sqlmock.NewRows(userTestColumns).AddRow(
        id, "reader@example.com", "x", "READER", true,
        false, nil, nil,
        model.TierPremium, model.SubscriptionActive, testNow, testNow)
}

// trialUserRow builds a row for a free-tier user whose trial window ends
// at the given instant.
func trialUserRow(id uint64, trialEnd time.Time) *sqlmock.Rows {
    started := trialEnd.Add(-TrialDuration)
    return sqlmock.NewRows(userTestColumns).AddRow(
        id, "trial@example.com", "x", "READER", true,
        true, started, trialEnd,
        model.TierFree, model.SubscriptionActive, testNow, testNow)
}

// lapsedUserRow builds a row for a user whose subscription has lapsed.
func lapsedUserRow(id uint64) *sqlmock.Rows {
    return sqlmock.NewRows(userTestColumns).AddRow(
        id, "lapsed@example.com", "x", "READER", true,
        false, nil, nil,
        model.TierBasic, model.SubscriptionLapsed, testNow, testNow)
}

var loanTestColumns = []string{
    "id", "user_id", "book_id", "status", "loan_type", "started_at",
    "returned_at", "revoked_at", "revoke_reason",
}

func loanRow(id, userID, bookID uint64, status string) *sqlmock.Rows {
    return sqlmock.NewRows(loanTestColumns).AddRow(
        id, userID, bookID, status, model.LoanTypeSubscription, testNow.Add(-time.Hour),
        nil, nil, nil)
}

var deviceTestColumns = []string{
    "id", "user_id", "name", "device_fingerprint", "public_key",
    "is_active", "last_active_at", "created_at",
}

func deviceRow(id, userID uint64, active bool) *sqlmock.Rows {
    return sqlmock.NewRows(deviceTestColumns).AddRow(
        id, userID, "Kobo Libra", Fingerprint("kobo"), "pubkey",
        active, testNow.Add(-time.Hour), testNow.Add(-48*time.Hour))
}

func countRow(n int) *sqlmock.Rows {
    return sqlmock.NewRows([]string{"COUNT(*)"}).AddRow(n)
}
