//go:build !profile

package prof

import "net/http"

// Enabled reports whether profiling is compiled in.
const Enabled = false

// Start returns a session that does nothing when built without the
// "profile" tag.
func Start(c Config) (*Session, error) {
	return &Session{config: c}, nil
}

// Stop is a no-op when built without the "profile" tag.
func (s *Session) Stop() error {
	return nil
}

// Register is a no-op when built without the "profile" tag.
func Register(_ *http.ServeMux) {}
