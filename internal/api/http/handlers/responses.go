package handlers

import (
	"net/http"
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/netcafe-service/internal/api/dto"
	"github.com/spec-kit/netcafe-service/internal/auth"
	"github.com/spec-kit/netcafe-service/internal/domain"
	"github.com/spec-kit/netcafe-service/internal/service"
	apperrors "github.com/spec-kit/netcafe-service/pkg/util/errorutil"
)

func principal(c *fiber.Ctx) (*domain.Account, error) {
	p, ok := auth.PrincipalFromContext(c)
	if !ok {
		return nil, apperrors.NewUnauthorized("authentication required")
	}
	return p.Account, nil
}

func parseIDParam(c *fiber.Ctx, key string) (int64, error) {
	id, err := strconv.ParseInt(c.Params(key), 10, 64)
	if err != nil || id <= 0 {
		return 0, fiber.NewError(http.StatusBadRequest, "invalid "+key)
	}
	return id, nil
}

func parseIntQuery(c *fiber.Ctx, key string, defaultVal int) int {
	if val := c.Query(key); val != "" {
		if parsed, err := strconv.Atoi(val); err == nil && parsed > 0 {
			return parsed
		}
	}
	return defaultVal
}

func accountResponse(view *service.AccountView) dto.AccountResponse {
	return dto.AccountResponse{
		ID:           view.ID,
		Username:     view.Username,
		Role:         string(view.Role),
		Balance:      view.Balance,
		SecondsLeft:  view.SecondsLeft,
		IsOnline:     view.IsOnline,
		Connections:  view.Connections,
		LastActivity: view.LastActivity,
		CreatedAt:    view.CreatedAt,
	}
}

func topUpResponse(req *domain.TopUpRequest) dto.TopUpResponse {
	return dto.TopUpResponse{
		ID:           req.ID,
		AccountID:    req.AccountID,
		Username:     req.Username,
		Amount:       req.Amount,
		Status:       string(req.Status),
		UserNotified: req.UserNotified,
		CreatedAt:    req.CreatedAt,
	}
}

func topUpResponses(reqs []domain.TopUpRequest) []dto.TopUpResponse {
	items := make([]dto.TopUpResponse, 0, len(reqs))
	for i := range reqs {
		items = append(items, topUpResponse(&reqs[i]))
	}
	return items
}

func messageResponse(msg *domain.Message) dto.MessageResponse {
	return dto.MessageResponse{
		ID:          msg.ID,
		SenderID:    msg.SenderID,
		RecipientID: msg.RecipientID,
		Content:     msg.Content,
		CreatedAt:   msg.CreatedAt,
	}
}
