package browser

import (
	"context"
	"fmt"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
)

// OpenTab creates a new tab (stealth when configured), applies resource
// blocking and navigates to pageURL. The caller must Close the page.
func (s *Session) OpenTab(ctx context.Context, pageURL string, navTimeout time.Duration) (*rod.Page, error) {
	if s.browser == nil {
		return nil, fmt.Errorf("browser: no active browser")
	}

	var page *rod.Page
	var err error

	if s.cfg.Stealth {
		page, err = stealth.Page(s.browser)
	} else {
		page, err = s.browser.Page(proto.TargetCreateTarget{URL: ""})
	}
	if err != nil {
		return nil, fmt.Errorf("browser: create tab: %w", err)
	}

	if len(s.cfg.ResourceBlocking) > 0 {
		if err := applyResourceBlocking(page, s.cfg.ResourceBlocking); err != nil {
			s.cfg.Logger.Warn("browser: resource blocking failed", "error", err)
		}
	}

	navCtx, cancel := context.WithTimeout(ctx, navTimeout)
	defer cancel()

	if err := page.Context(navCtx).Navigate(pageURL); err != nil {
		page.Close()
		return nil, fmt.Errorf("browser: navigate %s: %w", pageURL, err)
	}

	if err := page.Context(navCtx).WaitLoad(); err != nil {
		s.cfg.Logger.Warn("browser: wait load timeout", "url", pageURL, "error", err)
	}

	return page.Context(ctx), nil
}
