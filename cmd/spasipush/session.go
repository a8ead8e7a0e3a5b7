package main

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/sessions"
	"github.com/labstack/echo-contrib/session"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

const SessionKey = "spasi-push"
const InstallationKey = "installation"
const SessionInstallationKey = "installation"

// InstallationMiddleware gives every browser a stable installation id, kept
// in the session cookie.
func InstallationMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			sess, err := session.Get(SessionKey, c)
			if err != nil {
				logrus.Debug(errors.Wrap(err, "decoding session, starting a new one"))
			}

			id, _ := sess.Values[SessionInstallationKey].(string)
			if _, perr := uuid.Parse(id); perr != nil {
				id = uuid.NewString()
				sess.Values[SessionInstallationKey] = id
				sess.Options = &sessions.Options{
					Path:     "/",
					MaxAge:   365 * 24 * 60 * 60,
					HttpOnly: true,
					Secure:   c.Scheme() == "https",
					SameSite: http.SameSiteLaxMode,
				}
				if err := sess.Save(c.Request(), c.Response()); err != nil {
					return errors.Wrap(err, "saving session")
				}
				logrus.WithField("installation", id).Debug("New installation")
			}

			c.Set(InstallationKey, id)
			return next(c)
		}
	}
}

func GetInstallation(c echo.Context) string {
	id, _ := c.Get(InstallationKey).(string)
	return id
}
