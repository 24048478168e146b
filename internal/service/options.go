package service

import (
	"time"

	"github.com/rs/zerolog/log"
)

// Clock abstracts time.Now so tests can pin timestamps, mirroring the
// teacher's service.Clock seam.
type Clock interface {
	Now() time.Time
}

// SystemClock implements Clock using time.Now.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

// Logger is the minimal structured-logging interface the service depends
// on, satisfied by a zerolog.Logger adapter.
type Logger interface {
	Info(msg string, fields map[string]any)
	Error(msg string, fields map[string]any)
}

type defaultLogger struct{}

func (defaultLogger) Info(msg string, fields map[string]any) {
	ev := log.Info()
	for k, v := range fields {
		ev = ev.Interface(k, v)
	}
	ev.Msg(msg)
}

func (defaultLogger) Error(msg string, fields map[string]any) {
	ev := log.Error()
	for k, v := range fields {
		ev = ev.Interface(k, v)
	}
	ev.Msg(msg)
}

// PrivacyFilter is the seam spec.md §1 names as "a privacy-filter
// placeholder that is an identity function in the covered versions" — real
// privacy enforcement is an explicit Non-goal, but the interface is kept
// injectable so a future policy can be dropped in without touching Recall's
// call site.
type PrivacyFilter interface {
	Apply(items []retrieveItem) []retrieveItem
}

// identityPrivacyFilter is the default PrivacyFilter: it returns items
// unchanged, matching the original_source's privacy_service.py stub.
type identityPrivacyFilter struct{}

func (identityPrivacyFilter) Apply(items []retrieveItem) []retrieveItem { return items }

// WithPrivacyFilter overrides the default identity PrivacyFilter.
func WithPrivacyFilter(f PrivacyFilter) Option { return func(s *Service) { s.privacy = f } }
