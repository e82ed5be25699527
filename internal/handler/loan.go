package handler

import (
    "context"
    "net/http"
    "strconv"
    "strings"
    "time"

    "github.com/labstack/echo/v4"

    "github.com/inkstream/inkstream-server/internal/engine"
)

// LoanHandler exposes the loan lifecycle over HTTP.  Cap enforcement and
// state transitions live in the engine; the handler only parses, calls
// and maps errors.
type LoanHandler struct {
    Loans *engine.LoanManager
}

func NewLoanHandler(m *engine.LoanManager) *LoanHandler {
    return &LoanHandler{Loans: m}
}

type borrowReq struct {
    BookID uint64 `json:"book_id"`
}

type revokeReq struct {
    Reason string `json:"reason"`
}

// Borrow creates an active loan for the authenticated user.
func (h *LoanHandler) Borrow(c echo.Context) error {
    uid, err := getUserID(c)
    if err != nil {
        return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
    }
    var req borrowReq
    if err := c.Bind(&req); err != nil || req.BookID == 0 {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "book_id required"})
    }

    ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
    defer cancel()

    loan, err := h.Loans.Borrow(ctx, uid, req.BookID)
    if err != nil {
        return engineError(c, err)
    }
    return c.JSON(http.StatusCreated, loan)
}

// Return moves the caller's loan to returned.
func (h *LoanHandler) Return(c echo.Context) error {
    uid, err := getUserID(c)
    if err != nil {
        return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
    }
    loanID, err := strconv.ParseUint(c.Param("id"), 10, 64)
    if err != nil || loanID == 0 {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid loan id"})
    }

    ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
    defer cancel()

    loan, err := h.Loans.Return(ctx, loanID, uid)
    if err != nil {
        return engineError(c, err)
    }
    return c.JSON(http.StatusOK, loan)
}

// Revoke is the system-initiated takedown path, restricted to admins via
// route middleware.  The reason is recorded on the loan row.
func (h *LoanHandler) Revoke(c echo.Context) error {
    loanID, err := strconv.ParseUint(c.Param("id"), 10, 64)
    if err != nil || loanID == 0 {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid loan id"})
    }
    var req revokeReq
    if err := c.Bind(&req); err != nil {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
    }
    reason := strings.TrimSpace(req.Reason)
    if reason == "" {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "reason required"})
    }

    ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
    defer cancel()

    loan, err := h.Loans.Revoke(ctx, loanID, reason)
    if err != nil {
        return engineError(c, err)
    }
    return c.JSON(http.StatusOK, loan)
}

// List returns the caller's loans, optionally filtered with ?status=.
func (h *LoanHandler) List(c echo.Context) error {
    uid, err := getUserID(c)
    if err != nil {
        return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
    }
    status := strings.ToLower(strings.TrimSpace(c.QueryParam("status")))

    ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
    defer cancel()

    loans, err := h.Loans.List(ctx, uid, status)
    if err != nil {
        return engineError(c, err)
    }
    return c.JSON(http.StatusOK, echo.Map{"loans": loans})
}

// Summary reports the caller's position against the loan cap.
func (h *LoanHandler) Summary(c echo.Context) error {
    uid, err := getUserID(c)
    if err != nil {
        return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
    }

    ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
    defer cancel()

    sum, err := h.Loans.Summary(ctx, uid)
    if err != nil {
        return engineError(c, err)
    }
    return c.JSON(http.StatusOK, sum)
}
