/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package resterr

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/trustbloc/logutil-go/pkg/log"

	"github.com/trustbloc/shield/internal/logfields"
)

var logger = log.New("rest-err")

func HTTPErrorHandler(err error, c echo.Context) {
	code, message := processError(err)

	logger.Error("rest error",
		logfields.WithHTTPStatus(code),
		logfields.WithAddress(c.Request().RequestURI),
		log.WithError(err))

	sendResponse(c, code, message)
}

func sendResponse(c echo.Context, code int, message interface{}) {
	var err error
	if !c.Response().Committed {
		if c.Request().Method == http.MethodHead {
			err = c.NoContent(code)
		} else {
			err = c.JSON(code, message)
		}
		if err != nil {
			logger.Error("write http response", log.WithError(err))
		}
	}
}

func processError(err error) (int, interface{}) {
	switch v := err.(type) { //nolint: errorlint
	case *echo.HTTPError:
		code, message := v.Code, v.Message
		if v.Internal != nil {
			message = err.Error()
		}

		if strMsg, ok := message.(string); ok {
			message = map[string]interface{}{
				"message": strMsg,
			}
		}

		return code, message

	case *CustomError:
		return v.HTTPCodeMsg()
	default:
		return http.StatusInternalServerError, map[string]interface{}{
			"code":    "generic-error",
			"message": err.Error(),
		}
	}
}
