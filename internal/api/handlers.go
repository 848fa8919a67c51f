// internal/api/handlers.go
package api

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"lender-match-workers/internal/common/errors"
	"lender-match-workers/internal/common/validation"
	"lender-match-workers/internal/models"
	"lender-match-workers/internal/recommendation"
)

// RecommendationService is satisfied by *recommendation.Service.
type RecommendationService interface {
	RecommendTop(ctx context.Context, form models.RecommendationFormData, monthlyRevenue float64, limit int) (*recommendation.Result, error)
	RecommendExplained(ctx context.Context, form models.RecommendationFormData, monthlyRevenue float64, limit int) (*recommendation.Result, error)
	Catalog(ctx context.Context) (*models.CatalogSnapshot, error)
}

type RecommendRequest struct {
	FormData       models.RecommendationFormData `json:"formData"`
	MonthlyRevenue float64                       `json:"monthlyRevenue"`
	MaxResults     int                           `json:"maxResults,omitempty"`
	Explain        bool                          `json:"explain,omitempty"`
}

type ProductsResponse struct {
	Products  []models.LenderProduct `json:"products"`
	Count     int                    `json:"count"`
	Source    string                 `json:"source"`
	FetchedAt time.Time              `json:"fetchedAt"`
	Stale     bool                   `json:"stale"`
}

type CategoriesResponse struct {
	Categories []models.CategoryStat `json:"categories"`
	Total      int                   `json:"total"`
}

var recommendSchema = validation.MustCompile(map[string]interface{}{
	"type":     "object",
	"required": []interface{}{"formData"},
	"properties": map[string]interface{}{
		"formData": map[string]interface{}{
			"type":     "object",
			"required": []interface{}{"headquarters", "fundingAmount"},
			"properties": map[string]interface{}{
				"headquarters":              map[string]interface{}{"type": "string", "minLength": 1},
				"fundingAmount":             map[string]interface{}{"type": "number", "minimum": 0},
				"lookingFor":                map[string]interface{}{"type": "string"},
				"accountsReceivableBalance": map[string]interface{}{"type": "number", "minimum": 0},
				"fundsPurpose":              map[string]interface{}{"type": "string"},
			},
		},
		"monthlyRevenue": map[string]interface{}{"type": "number", "minimum": 0},
		"maxResults":     map[string]interface{}{"type": "integer", "minimum": 1, "maximum": 100},
		"explain":        map[string]interface{}{"type": "boolean"},
	},
})

func (s *Server) recommend(c *gin.Context) {
	raw, err := c.GetRawData()
	if err != nil {
		var tooLarge *http.MaxBytesError
		if stderrors.As(err, &tooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, errorBody(c, "BODY_TOO_LARGE", "request body too large"))
			return
		}
		s.respondError(c, errors.NewInvalidInputError(err.Error()))
		return
	}

	res, err := recommendSchema.Validate(raw)
	if err != nil {
		s.respondError(c, errors.NewInvalidInputError("body is not valid JSON"))
		return
	}
	if !res.Valid {
		body := errorBody(c, string(errors.ErrCodeInvalidInput), "request failed validation")
		body["errors"] = res.Errors
		c.JSON(http.StatusBadRequest, body)
		return
	}

	var req RecommendRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		s.respondError(c, errors.NewInvalidInputError(err.Error()))
		return
	}

	recommend := s.recommender.RecommendTop
	if req.Explain {
		recommend = s.recommender.RecommendExplained
	}
	result, err := recommend(c.Request.Context(), req.FormData, req.MonthlyRevenue, req.MaxResults)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (s *Server) listProducts(c *gin.Context) {
	snap, err := s.recommender.Catalog(c.Request.Context())
	if err != nil {
		s.respondError(c, err)
		return
	}

	country := strings.TrimSpace(c.Query("country"))
	category := strings.ToLower(strings.TrimSpace(c.Query("category")))

	products := make([]models.LenderProduct, 0, len(snap.Products))
	for _, p := range snap.Products {
		if country != "" && !recommendation.CountryMatches(p, country) {
			continue
		}
		if category != "" &&
			!strings.Contains(strings.ToLower(p.Category), category) &&
			!strings.Contains(strings.ToLower(recommendation.FormatCategoryName(p.Category)), category) {
			continue
		}
		products = append(products, p)
	}

	c.JSON(http.StatusOK, ProductsResponse{
		Products:  products,
		Count:     len(products),
		Source:    snap.Source,
		FetchedAt: snap.FetchedAt,
		Stale:     snap.Stale,
	})
}

func (s *Server) listCategories(c *gin.Context) {
	snap, err := s.recommender.Catalog(c.Request.Context())
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, CategoriesResponse{
		Categories: recommendation.GroupByCategory(snap.Products, models.RecommendationFormData{}),
		Total:      len(snap.Products),
	})
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().Format(time.RFC3339),
	})
}

func (s *Server) ready(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()

	checks := make(map[string]string, len(s.checks))
	status := http.StatusOK
	for name, check := range s.checks {
		if err := check(ctx); err != nil {
			checks[name] = errors.Normalize(err).Details
			status = http.StatusServiceUnavailable
			continue
		}
		checks[name] = "ok"
	}

	state := "ready"
	if status != http.StatusOK {
		state = "not_ready"
	}
	c.JSON(status, gin.H{
		"status": state,
		"checks": checks,
		"time":   time.Now().Format(time.RFC3339),
	})
}

func (s *Server) respondError(c *gin.Context, err error) {
	stdErr := errors.Normalize(err)
	status := statusFor(stdErr.Code)
	if status >= 500 {
		s.logger.Error("request failed", map[string]interface{}{
			"requestId": c.GetString(ctxRequestID),
			"errorCode": string(stdErr.Code),
			"details":   stdErr.Details,
		})
	}
	body := errorBody(c, string(stdErr.Code), stdErr.Message)
	if status < 500 && stdErr.Details != "" {
		body["details"] = stdErr.Details
	}
	c.JSON(status, body)
}

func statusFor(code errors.ErrorCode) int {
	switch code {
	case errors.ErrCodeInvalidInput:
		return http.StatusBadRequest
	case errors.ErrCodeCatalogUnavailable:
		return http.StatusServiceUnavailable
	case errors.ErrCodeTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func errorBody(c *gin.Context, code, message string) gin.H {
	return gin.H{
		"error":     code,
		"message":   message,
		"requestId": c.GetString(ctxRequestID),
	}
}
