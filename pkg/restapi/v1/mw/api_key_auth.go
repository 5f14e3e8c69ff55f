/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package mw

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

const (
	header          = "X-API-Key"
	healthCheckPath = "/healthcheck"
	verifyPath      = "/verify"
	policiesPrefix  = "/v1/policies/"
)

// APIKeyAuth returns a middleware that authenticates requests using the API
// key from the X-API-Key header. The healthcheck and the recipient-facing
// endpoints (the verify attempt and the GET pre-check) stay open.
func APIKeyAuth(apiKey string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			request := c.Request()
			path := strings.ToLower(request.URL.Path)

			if strings.HasSuffix(path, healthCheckPath) || strings.HasSuffix(path, verifyPath) {
				return next(c)
			}

			if request.Method == http.MethodGet && strings.HasPrefix(path, policiesPrefix) {
				return next(c)
			}

			apiKeyHeader := c.Request().Header.Get(header)
			if subtle.ConstantTimeCompare([]byte(apiKeyHeader), []byte(apiKey)) != 1 {
				return &echo.HTTPError{
					Code:    http.StatusUnauthorized,
					Message: "Unauthorized",
				}
			}

			return next(c)
		}
	}
}
