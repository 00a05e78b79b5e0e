package httphelpers

import (
	"context"
	"encoding/json"
	"vc/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
)

// bindingHandler is the bindingHandler object for httphelpers
type bindingHandler struct {
	client *Client
	log    *logger.Log
}

// FastAndSimple binds the request body to the given struct without use of struct tags (except for json)
func (b *bindingHandler) FastAndSimple(ctx context.Context, c *gin.Context, v any) error {
	return json.NewDecoder(c.Request.Body).Decode(&v)
}

// Request binds URI parameters, query parameters and headers to the given struct
func (b *bindingHandler) Request(ctx context.Context, c *gin.Context, v any) error {
	if err := c.BindUri(v); err != nil {
		return err
	}
	if err := c.ShouldBindQuery(v); err != nil {
		return err
	}
	return c.ShouldBindHeader(v)
}

// Validator returns a new DefaultValidator instance with validator. Used for gin binding
func (b *bindingHandler) Validator() (*DefaultValidator, error) {
	validate := validator.New(validator.WithRequiredStructEnabled())
	return &DefaultValidator{Validate: validate}, nil
}
