package api

import (
	"errors"
	"net/http"
	"reflect"
	"strings"
	"sync"

	"shop-service/internal/service"
	"shop-service/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

// respondError writes the HTTP response for a service error
func respondError(c *gin.Context, err error) {
	var (
		verr *service.ValidationError
		perr *service.PaymentError
	)

	switch {
	case errors.As(err, &verr):
		c.JSON(http.StatusBadRequest, gin.H{
			"error":  "Validation failed",
			"fields": verr.Fields,
		})
	case errors.As(err, &perr):
		c.JSON(http.StatusBadGateway, gin.H{
			"error":   "Payment processor error",
			"details": perr.Err.Error(),
			"order":   perr.Order,
		})
	case errors.Is(err, errUnauthenticated), errors.Is(err, service.ErrInvalidCredentials):
		c.Header("WWW-Authenticate", `Basic realm="api"`)
		c.JSON(http.StatusUnauthorized, gin.H{"error": capitalize(err.Error())})
	case errors.Is(err, service.ErrForbidden):
		c.JSON(http.StatusForbidden, gin.H{"error": "You do not have permission to perform this action."})
	case errors.Is(err, service.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Not found."})
	case errors.Is(err, service.ErrCategoryInUse):
		c.JSON(http.StatusMethodNotAllowed, gin.H{"error": "Category cannot be deleted because it includes one or more products."})
	case errors.Is(err, service.ErrCheckoutInProgress):
		c.JSON(http.StatusConflict, gin.H{"error": capitalize(err.Error())})
	default:
		util.GetLogger().Error("Request failed",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
	}
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:] + "."
}

var registerTagNames sync.Once

// bindJSON decodes the request body. Binding failures are answered with
// 400 and false is returned.
func bindJSON(c *gin.Context, dst interface{}) bool {
	registerTagNames.Do(func() {
		if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
			v.RegisterTagNameFunc(func(f reflect.StructField) string {
				name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
				if name == "-" {
					return ""
				}
				return name
			})
		}
	})

	err := c.ShouldBindJSON(dst)
	if err == nil {
		return true
	}

	var ve validator.ValidationErrors
	if errors.As(err, &ve) {
		fields := map[string][]string{}
		for _, fe := range ve {
			msg := "Invalid value."
			if fe.Tag() == "required" {
				msg = "This field is required."
			}
			fields[fe.Field()] = append(fields[fe.Field()], msg)
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "Validation failed", "fields": fields})
		return false
	}

	c.JSON(http.StatusBadRequest, gin.H{
		"error":   "Invalid request body",
		"details": err.Error(),
	})
	return false
}
