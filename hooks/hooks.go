// Package hooks implements the named-hook bus used by the authentication,
// registration, settings and forum lifecycle flows. Each hook has a fixed
// dispatch policy: first-non-nil for providers, collect for validators and
// handlers, notify for events.
package hooks

import "sync"

// Hook names. Auth providers and handlers:
const (
	Authenticate         = "authenticate"
	PostAuthenticate     = "post_authenticate"
	AuthenticationFailed = "authentication_failed"
	ReauthAttempt        = "reauth_attempt"
	PostReauth           = "post_reauth"
	ReauthFailed         = "reauth_failed"
)

// Registration hooks:
const (
	GatherRegistrationValidators = "gather_registration_validators"
	RegistrationFailureHandler   = "registration_failure_handler"
	RegistrationPostProcessor    = "registration_post_processor"
)

// Update hooks:
const (
	GatherDetailsValidators  = "gather_details_validators"
	GatherPasswordValidators = "gather_password_validators"
	GatherEmailValidators    = "gather_email_validators"
	DetailsUpdated           = "details_updated"
	PasswordUpdated          = "password_updated"
	EmailUpdated             = "email_updated"
	SettingsUpdated          = "settings_updated"
)

// Forum lifecycle hooks:
const (
	EventPostSaveBefore  = "event_post_save_before"
	EventPostSaveAfter   = "event_post_save_after"
	EventTopicSaveBefore = "event_topic_save_before"
	EventTopicSaveAfter  = "event_topic_save_after"
)

// Callback receives the hook arguments and may return a value; nil means "no
// answer" under the first-non-nil policy.
type Callback func(args ...interface{}) (interface{}, error)

// Registry maps hook names to ordered callback lists. Registration happens at
// boot or service construction time; dispatch is read-mostly.
type Registry struct {
	mu    sync.RWMutex
	hooks map[string][]Callback
}

// NewRegistry returns an empty hook registry.
func NewRegistry() *Registry {
	return &Registry{hooks: make(map[string][]Callback)}
}

// Register appends a callback at the end of a hook's chain.
func (r *Registry) Register(name string, cb Callback) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hooks[name] = append(r.hooks[name], cb)
}

// callbacks returns a snapshot of the chain for a hook.
func (r *Registry) callbacks(name string) []Callback {
	r.mu.RLock()
	defer r.mu.RUnlock()
	chain := r.hooks[name]
	out := make([]Callback, len(chain))
	copy(out, chain)
	return out
}

// FirstNonNil walks the chain and returns the first non-nil result. An error
// from any callback aborts the dispatch immediately.
func (r *Registry) FirstNonNil(name string, args ...interface{}) (interface{}, error) {
	for _, cb := range r.callbacks(name) {
		res, err := cb(args...)
		if err != nil {
			return nil, err
		}
		if res != nil {
			return res, nil
		}
	}
	return nil, nil
}

// Collect runs the whole chain and gathers every non-nil result. An error
// aborts the dispatch.
func (r *Registry) Collect(name string, args ...interface{}) ([]interface{}, error) {
	var results []interface{}
	for _, cb := range r.callbacks(name) {
		res, err := cb(args...)
		if err != nil {
			return nil, err
		}
		if res != nil {
			results = append(results, res)
		}
	}
	return results, nil
}

// Notify runs the whole chain ignoring results; the first error aborts.
func (r *Registry) Notify(name string, args ...interface{}) error {
	for _, cb := range r.callbacks(name) {
		if _, err := cb(args...); err != nil {
			return err
		}
	}
	return nil
}
