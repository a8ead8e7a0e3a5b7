package main

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spasibg/spasi-push/lib/broadcast"
	"github.com/spasibg/spasi-push/lib/subscribers"
	"golang.org/x/crypto/bcrypt"
)

// AdminMiddleware checks the bearer token against a bcrypt hash. With no hash
// configured every admin request is refused.
func AdminMiddleware(tokenHash string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if tokenHash == "" {
				return c.String(http.StatusForbidden, "admin endpoints are disabled")
			}

			token, ok := strings.CutPrefix(c.Request().Header.Get(echo.HeaderAuthorization), "Bearer ")
			if !ok || token == "" {
				return c.String(http.StatusUnauthorized, "unauthorized")
			}
			if compareErr := bcrypt.CompareHashAndPassword([]byte(tokenHash), []byte(token)); compareErr != nil {
				logrus.WithField("ip", c.RealIP()).Warn("Rejected admin token")
				return c.String(http.StatusUnauthorized, "unauthorized")
			}
			return next(c)
		}
	}
}

func (s *server) pushNotification() echo.HandlerFunc {
	return func(c echo.Context) error {
		var push broadcast.Push
		if err := c.Bind(&push); err != nil {
			return c.String(http.StatusBadRequest, "invalid push")
		}
		if push.Title == "" && push.Body == "" {
			return c.String(http.StatusBadRequest, "push needs a title or a body")
		}

		if !s.worker.Enqueue(push) {
			return c.String(http.StatusServiceUnavailable, "push queue is full, try again later")
		}
		return c.String(http.StatusAccepted, "push notifications queued")
	}
}

func (s *server) listSubscribers() echo.HandlerFunc {
	return func(c echo.Context) error {
		f := subscribers.Filter{
			City:     c.QueryParam("city"),
			Category: c.QueryParam("category"),
		}
		var err error
		if v := c.QueryParam("limit"); v != "" {
			if f.Limit, err = strconv.Atoi(v); err != nil || f.Limit < 0 {
				return c.String(http.StatusBadRequest, "invalid limit")
			}
		}
		if v := c.QueryParam("offset"); v != "" {
			if f.Offset, err = strconv.Atoi(v); err != nil || f.Offset < 0 {
				return c.String(http.StatusBadRequest, "invalid offset")
			}
		}

		subs, err := s.store.List(c.Request().Context(), f)
		if err != nil {
			return errors.Wrap(err, "listing subscribers")
		}
		return c.JSON(http.StatusOK, subs)
	}
}

func (s *server) deleteSubscriber() echo.HandlerFunc {
	return func(c echo.Context) error {
		token := c.Param("token")
		err := s.store.Delete(c.Request().Context(), token)
		if errors.Is(err, subscribers.ErrNotFound) {
			return c.String(http.StatusNotFound, "subscriber not found")
		}
		if err != nil {
			return errors.Wrap(err, "deleting subscriber")
		}
		logrus.WithField("token", token).Info("Deleted subscriber")
		return c.NoContent(http.StatusNoContent)
	}
}
