package worker

import (
	"context"

	"github.com/nexconsult/rera-harvester/internal/service/browser"
)

// BrowserSessions opens a fresh stealth browser per worker.
func BrowserSessions(f *browser.Factory) SessionFactory {
	return SessionFactoryFunc(func(ctx context.Context) (Session, error) {
		s, err := f.NewSession(ctx)
		if err != nil {
			// A nil *browser.Session must not become a non-nil Session.
			return nil, err
		}
		return s, nil
	})
}
