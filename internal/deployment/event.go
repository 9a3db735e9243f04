package deployment

import (
	"encoding/json"
	"errors"
	"fmt"
	"unicode/utf8"

	"github.com/karmakaze/quicklog/internal/config"
)

// ErrInvalidUTF8 is returned when a payload is not UTF-8 text.
var ErrInvalidUTF8 = errors.New("payload is not valid UTF-8")

// Repository is the part of a push payload's "repository" object we read.
type Repository struct {
	FullName *string
}

// PushEvent is the subset of a push payload that decides whether to deploy.
// Absent, null and wrongly typed fields are nil.
type PushEvent struct {
	Repository *Repository
	Ref        *string
	After      *string
}

// ParsePushEvent decodes a push payload. The body must be UTF-8 and a JSON
// object; everything below the top level is read leniently.
func ParsePushEvent(body []byte) (*PushEvent, error) {
	if !utf8.Valid(body) {
		return nil, ErrInvalidUTF8
	}

	var doc map[string]json.RawMessage
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("invalid JSON payload: %w", err)
	}
	if doc == nil {
		return nil, fmt.Errorf("invalid JSON payload: top level is null")
	}

	event := &PushEvent{
		Ref:   stringField(doc, "ref"),
		After: stringField(doc, "after"),
	}

	if raw, ok := doc["repository"]; ok {
		var repo map[string]json.RawMessage
		if err := json.Unmarshal(raw, &repo); err == nil && repo != nil {
			event.Repository = &Repository{FullName: stringField(repo, "full_name")}
		}
	}

	return event, nil
}

func stringField(obj map[string]json.RawMessage, key string) *string {
	raw, ok := obj[key]
	if !ok {
		return nil
	}
	var s *string
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil
	}
	return s
}

// GetFullName returns repository.full_name, or "" if absent.
func (e *PushEvent) GetFullName() string {
	if e == nil || e.Repository == nil || e.Repository.FullName == nil {
		return ""
	}
	return *e.Repository.FullName
}

// GetRef returns ref, or "" if absent.
func (e *PushEvent) GetRef() string {
	if e == nil || e.Ref == nil {
		return ""
	}
	return *e.Ref
}

// GetAfter returns the pushed head commit, or "" if absent.
func (e *PushEvent) GetAfter() string {
	if e == nil || e.After == nil {
		return ""
	}
	return *e.After
}

// Matches reports whether the event names exactly the target repository
// and ref. Comparison is case-sensitive; absent fields never match.
func (e *PushEvent) Matches(target config.Target) bool {
	if e == nil || e.Repository == nil || e.Repository.FullName == nil || e.Ref == nil {
		return false
	}
	return *e.Repository.FullName == target.FullName && *e.Ref == target.Ref
}
