// internal/handlers/verification.go
package handlers

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/protrace/backend/internal/services"
	"github.com/protrace/backend/internal/utils"
)

// VerificationHandler serves the public authenticity check: anyone holding
// a scanned code can resolve its identity hash without an account.
type VerificationHandler struct {
	productService *services.ProductService
}

func NewVerificationHandler(productService *services.ProductService) *VerificationHandler {
	return &VerificationHandler{
		productService: productService,
	}
}

// GET /verify/:hash
func (h *VerificationHandler) Verify(c *gin.Context) {
	hash := strings.ToLower(strings.TrimSpace(c.Param("hash")))
	if len(hash) != 64 {
		utils.BadRequestResponse(c, "Invalid identity hash", nil)
		return
	}

	product, err := h.productService.GetByIdentityHash(hash)
	if err != nil {
		utils.AppErrorResponse(c, err)
		return
	}

	utils.SuccessResponse(c, gin.H{
		"verified": true,
		"product":  product,
	})
}
