package server

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/accounts/internal/authorization"
	chargedomain "github.com/smallbiznis/accounts/internal/charge/domain"
	"github.com/smallbiznis/accounts/pkg/db/pagination"
)

type createChargeRequest struct {
	Organization string `json:"organization"`
	Amount       int64  `json:"amount"`
	FeeAmount    int64  `json:"fee_amount"`
	Description  string `json:"description"`
	Token        string `json:"token"`
	SaveCard     bool   `json:"save_card"`
}

func (s *Server) CreateCharge(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	var req createChargeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	req.Organization = strings.TrimSpace(req.Organization)
	if req.Organization == "" {
		AbortWithError(c, newValidationError("organization", "required", "organization is required"))
		return
	}

	if err := s.authorizeOrg(c, req.Organization, authorization.ObjectCharge, authorization.ActionCreate); err != nil {
		AbortWithError(c, err)
		return
	}

	resp, err := s.chargeSvc.Create(c.Request.Context(), chargedomain.CreateChargeRequest{
		Organization: req.Organization,
		Amount:       req.Amount,
		FeeAmount:    req.FeeAmount,
		Description:  req.Description,
		Token:        req.Token,
		SaveCard:     req.SaveCard,
		ActorID:      user.ID,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, resp)
}

func (s *Server) GetCharge(c *gin.Context) {
	resp, err := s.chargeSvc.Get(c.Request.Context(), c.Param("charge_id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if err := s.authorizeOrg(c, resp.Organization, authorization.ObjectCharge, authorization.ActionRead); err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

func (s *Server) ListCharges(c *gin.Context) {
	var page pagination.Pagination
	if err := c.ShouldBindQuery(&page); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.chargeSvc.ListByOrganization(c.Request.Context(), c.Param("uuid"), page)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

func (s *Server) ChargeReceipt(c *gin.Context) {
	ctx := c.Request.Context()
	chargeID := strings.TrimSpace(c.Param("charge_id"))

	charge, err := s.chargeSvc.Get(ctx, chargeID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if err := s.authorizeOrg(c, charge.Organization, authorization.ObjectCharge, authorization.ActionRead); err != nil {
		AbortWithError(c, err)
		return
	}

	doc, err := s.chargeSvc.Receipt(ctx, chargeID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf(`inline; filename="receipt-%s.pdf"`, chargeID))
	c.Data(http.StatusOK, "application/pdf", doc)
}
