package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/karmakaze/quicklog/internal/deployment"
	"github.com/karmakaze/quicklog/internal/history"

	"github.com/go-chi/chi/v5/middleware"
)

// okBody is written verbatim; json.Encoder would append a newline.
var okBody = []byte(`"OK"`)

// handlerFunc is a handler that reports failures instead of writing them.
type handlerFunc func(w http.ResponseWriter, r *http.Request) error

// handle converts a handler error into a JSON error response.
func (s *Server) handle(h handlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		err := h(w, r)
		if err == nil {
			return
		}

		status := http.StatusInternalServerError
		kind := "internal"
		var reqErr *RequestError
		if errors.As(err, &reqErr) {
			status = reqErr.Status()
			kind = string(reqErr.Kind)
		}

		s.Logger.Error("Webhook request failed",
			"error", err,
			"kind", kind,
			"status", status,
			"request_id", middleware.GetReqID(r.Context()))
		s.respondJSON(w, status, map[string]string{"error": err.Error()})
	}
}

// HandleLiveness answers GET and HEAD on any path.
func (s *Server) HandleLiveness(w http.ResponseWriter, r *http.Request) {
	s.respondOK(w, r)
}

// HandleWebhook reads a push notification and, when it names the configured
// repository and ref, runs the deploy sequence before answering. Command
// failures never change the response.
func (s *Server) HandleWebhook(w http.ResponseWriter, r *http.Request) error {
	received := time.Now().UTC()

	body, err := s.readBody(r)
	if err != nil {
		return err
	}

	event, err := deployment.ParsePushEvent(body)
	if err != nil {
		return &RequestError{Kind: KindParse, Err: err}
	}

	ghEvent := r.Header.Get("X-GitHub-Event")
	deliveryID := r.Header.Get("X-GitHub-Delivery")

	delivery := &history.Delivery{
		DeliveryID: optional(deliveryID),
		Event:      optional(ghEvent),
		FullName:   event.GetFullName(),
		Ref:        event.GetRef(),
		Outcome:    history.OutcomeIgnored,
		ReceivedAt: received,
		CommitHash: optional(event.GetAfter()),
	}

	if !s.Deployer.ShouldDeploy(event) {
		s.Logger.Info("Ignoring push",
			"full_name", event.GetFullName(),
			"ref", event.GetRef(),
			"event", ghEvent,
			"delivery", deliveryID)
	} else {
		if !s.beginDeploy() {
			return &RequestError{
				Kind: KindUnavailable,
				Err:  fmt.Errorf("server is shutting down, push for %s not deployed", event.GetRef()),
			}
		}
		s.Logger.Info("Deploying push",
			"full_name", event.GetFullName(),
			"ref", event.GetRef(),
			"after", event.GetAfter(),
			"delivery", deliveryID)

		// A client hanging up must not abort a deploy halfway.
		report := s.Deployer.Deploy(context.WithoutCancel(r.Context()))
		s.deployWg.Done()

		fillDelivery(delivery, report)
		s.Logger.Info("Deploy finished",
			"ok", report.OK(),
			"outcome", delivery.Outcome,
			"failed_commands", len(report.Failed()),
			"duration_ms", report.Duration.Milliseconds())
	}

	s.record(r.Context(), delivery)
	s.respondOK(w, r)
	return nil
}

// readBody reads exactly Content-Length bytes.
func (s *Server) readBody(r *http.Request) ([]byte, error) {
	if r.ContentLength < 0 {
		return nil, transportError("missing Content-Length header")
	}
	if limit := s.Options.MaxPayloadBytes; limit > 0 && r.ContentLength > limit {
		return nil, &RequestError{
			Kind: KindTooLarge,
			Err:  fmt.Errorf("payload of %d bytes exceeds limit of %d", r.ContentLength, limit),
		}
	}

	body := make([]byte, r.ContentLength)
	if _, err := io.ReadFull(r.Body, body); err != nil {
		return nil, transportError("failed to read request body: %w", err)
	}
	return body, nil
}

func fillDelivery(d *history.Delivery, report *deployment.Report) {
	completed := time.Now().UTC()
	duration := report.Duration.Seconds()
	d.CompletedAt = &completed
	d.DurationSeconds = &duration
	d.HeadBefore = optional(report.HeadBefore)
	d.HeadAfter = optional(report.HeadAfter)

	if report.OK() {
		d.Outcome = history.OutcomeDeployed
		return
	}

	d.Outcome = history.OutcomeFailed
	failed := report.Failed()
	msgs := make([]string, 0, len(failed))
	for _, step := range failed {
		if step.Err != nil {
			msgs = append(msgs, fmt.Sprintf("%s: %v", step.Command, step.Err))
		} else {
			msgs = append(msgs, fmt.Sprintf("%s: exit code %d", step.Command, step.ExitCode))
		}
	}
	msg := strings.Join(msgs, "; ")
	d.ErrorMessage = &msg
}

// record journals a delivery. Journal errors are logged, never returned.
func (s *Server) record(ctx context.Context, d *history.Delivery) {
	if s.History == nil {
		return
	}
	if _, err := s.History.Record(context.WithoutCancel(ctx), d); err != nil {
		s.Logger.Error("Failed to record delivery", "error", err, "outcome", d.Outcome)
	}
}

func (s *Server) respondOK(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if r.Method == http.MethodHead {
		return
	}
	if _, err := w.Write(okBody); err != nil {
		s.Logger.Debug("Failed to write response", "error", err)
	}
}

// respondJSON sends a JSON response
func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.Logger.Error("Failed to encode JSON response", "error", err)
	}
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
