package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	webpush "github.com/SherClockHolmes/webpush-go"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spasibg/spasi-push/lib/pushsdk"
	"github.com/spasibg/spasi-push/lib/pushstate"
	"github.com/spasibg/spasi-push/types"
)

const keepAliveInterval = 25 * time.Second

func (s *server) vapidKey() echo.HandlerFunc {
	return func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"publicKey": s.cfg.VapidPublicKey})
	}
}

func (s *server) pushState() echo.HandlerFunc {
	return func(c echo.Context) error {
		m := s.registry.Get(GetInstallation(c))
		state, err := m.Wait(c.Request().Context())
		if err != nil {
			return errors.Wrap(err, "waiting for initialization")
		}

		payload := types.NewStatePayload(state)
		show, err := s.dialog.ShouldShow(c.Request().Context(), m.Installation(), state)
		if err != nil {
			logrus.WithField("installation", m.Installation()).Warn(err)
		}
		return c.JSON(http.StatusOK, payload.WithDialog(show, s.dialog.Delay))
	}
}

func (s *server) subscribe() echo.HandlerFunc {
	return func(c echo.Context) error {
		var profile types.Profile
		if err := c.Bind(&profile); err != nil {
			return c.String(http.StatusBadRequest, "invalid subscriber profile")
		}

		m := s.registry.Get(GetInstallation(c))
		res := m.Subscribe(c.Request().Context(), profile)
		return c.JSON(statusFor(res), types.StatePayload{}.WithResult(res))
	}
}

func (s *server) unsubscribe() echo.HandlerFunc {
	return func(c echo.Context) error {
		m := s.registry.Get(GetInstallation(c))
		res := m.Unsubscribe(c.Request().Context())
		return c.JSON(statusFor(res), types.StatePayload{}.WithResult(res))
	}
}

func statusFor(res types.Result) int {
	if res.Outcome == types.OutcomeTransient {
		return http.StatusServiceUnavailable
	}
	return http.StatusOK
}

type promptAnswer struct {
	Declined bool `json:"declined"`
	webpush.Subscription
}

// answerPrompt receives the browser's answer to a permission prompt sent over
// /push/events: either the PushSubscription JSON or {"declined": true}.
func (s *server) answerPrompt() echo.HandlerFunc {
	return func(c echo.Context) error {
		var answer promptAnswer
		if err := c.Bind(&answer); err != nil {
			return c.String(http.StatusBadRequest, "invalid prompt answer")
		}

		m := s.registry.Get(GetInstallation(c))
		answerer, ok := m.SDK().(pushsdk.Answerer)
		if !ok {
			return c.String(http.StatusConflict, "this installation does not use browser prompts")
		}

		var reg *pushsdk.Registration
		if !answer.Declined {
			r := pushsdk.RegistrationFrom(answer.Subscription)
			if !r.Valid() {
				return c.String(http.StatusBadRequest, "subscription is missing endpoint or keys")
			}
			reg = &r
		}

		if err := answerer.Answer(c.Request().Context(), reg); err != nil {
			return errors.Wrap(err, "answering prompt")
		}
		return c.NoContent(http.StatusNoContent)
	}
}

// events streams state snapshots and prompt requests of the installation.
func (s *server) events() echo.HandlerFunc {
	return func(c echo.Context) error {
		m := s.registry.Get(GetInstallation(c))
		events, unsubscribe := m.Watch()
		defer unsubscribe()

		w := c.Response()
		w.Header().Set(echo.HeaderContentType, "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.WriteHeader(http.StatusOK)

		state := m.State()
		if err := writeEvent(w, pushstate.Event{Type: pushstate.EventState, State: &state}); err != nil {
			return nil
		}

		keepAlive := time.NewTicker(keepAliveInterval)
		defer keepAlive.Stop()

		for {
			select {
			case <-c.Request().Context().Done():
				return nil
			case <-keepAlive.C:
				fmt.Fprint(w, ": keep-alive\n\n")
				w.Flush()
			case ev, ok := <-events:
				if !ok {
					return nil
				}
				if err := writeEvent(w, ev); err != nil {
					logrus.WithField("installation", m.Installation()).Debug(errors.Wrap(err, "writing event"))
					return nil
				}
			}
		}
	}
}

func writeEvent(w *echo.Response, ev pushstate.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return errors.Wrap(err, "marshalling event")
	}
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Type, data); err != nil {
		return err
	}
	w.Flush()
	return nil
}

func (s *server) dialogShown() echo.HandlerFunc {
	return func(c echo.Context) error {
		if err := s.dialog.MarkShown(c.Request().Context(), GetInstallation(c)); err != nil {
			return errors.Wrap(err, "marking dialog shown")
		}
		return c.NoContent(http.StatusNoContent)
	}
}
