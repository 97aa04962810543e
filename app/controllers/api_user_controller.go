package controllers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/JonasKellner/RenderForge/app/repository"
	"github.com/JonasKellner/RenderForge/internal/pkg/usercontext"
)

// HandleGetUserCredits returns the caller's balance and recent ledger.
// Security: API Key required via router middleware.
func HandleGetUserCredits(c *fiber.Ctx) error {
	user := usercontext.GetUserContext(c)
	if !user.IsLoggedIn {
		return errorJSON(c, fiber.StatusUnauthorized, "UNAUTHORIZED", "Missing or invalid authentication")
	}

	creditRepo := repository.GetGlobalFactory().GetCreditRepository()
	balance, err := creditRepo.GetBalance(user.UserID)
	if err != nil {
		log.Errorf("[API] balance lookup for user %d: %v", user.UserID, err)
		return errorJSON(c, fiber.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "balance lookup failed")
	}

	limit := c.QueryInt("limit", 20)
	if limit < 1 || limit > 100 {
		limit = 20
	}
	transactions, err := creditRepo.GetTransactions(user.UserID, 0, limit)
	if err != nil {
		log.Errorf("[API] ledger lookup for user %d: %v", user.UserID, err)
		return errorJSON(c, fiber.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "ledger lookup failed")
	}

	entries := make([]fiber.Map, 0, len(transactions))
	for _, tx := range transactions {
		entry := fiber.Map{
			"entry_type":    tx.EntryType,
			"amount":        tx.Amount,
			"balance_after": tx.BalanceAfter,
			"reason":        tx.Reason,
			"created_at":    tx.CreatedAt.UTC().Format("2006-01-02T15:04:05Z07:00"),
		}
		if tx.RenderJobID != nil {
			entry["render_job_id"] = *tx.RenderJobID
		}
		entries = append(entries, entry)
	}

	return c.JSON(fiber.Map{
		"balance":       balance.Balance,
		"total_credits": balance.TotalCredits,
		"transactions":  entries,
	})
}
