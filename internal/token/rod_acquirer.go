package token

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
)

// RodAcquirer drives a headless Chromium instance to the appraisal
// portal and captures the short-lived bearer token the portal's own
// frontend stores in web storage. The portal has no credentials
// endpoint, so loading the real page is the only way to obtain one.
type RodAcquirer struct {
	PortalURL  string
	StorageKey string
	// PollInterval controls how often web storage is re-read while
	// waiting for the portal scripts to install the token.
	PollInterval time.Duration
}

// NewRodAcquirer builds an acquirer for the given portal page and
// storage key.
func NewRodAcquirer(portalURL, storageKey string) *RodAcquirer {
	return &RodAcquirer{
		PortalURL:    portalURL,
		StorageKey:   storageKey,
		PollInterval: 500 * time.Millisecond,
	}
}

// Acquire launches a browser, loads the portal, and polls web storage
// until a token appears or the context expires.
func (a *RodAcquirer) Acquire(ctx context.Context) (string, error) {
	browser, err := newLocalBrowser(ctx)
	if err != nil {
		return "", err
	}
	defer func() { _ = browser.Close() }()

	page, err := browser.Page(proto.TargetCreateTarget{URL: a.PortalURL})
	if err != nil {
		return "", err
	}
	defer func() { _ = page.Close() }()

	if err := page.WaitLoad(); err != nil {
		return "", err
	}

	interval := a.PollInterval
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}

	for {
		tok, err := a.readToken(page)
		if err == nil && tok != "" {
			return tok, nil
		}

		select {
		case <-ctx.Done():
			if err != nil {
				return "", err
			}
			return "", errors.New("portal did not install a bearer token before timeout")
		case <-time.After(interval):
		}
	}
}

// readToken evaluates a storage lookup in the page. The portal writes
// the token to session storage; local storage is checked as well since
// the portal has moved it between the two across releases.
func (a *RodAcquirer) readToken(page *rod.Page) (string, error) {
	obj, err := page.Eval(`(key) => window.sessionStorage.getItem(key) || window.localStorage.getItem(key) || ""`, a.StorageKey)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(obj.Value.Str()), nil
}

// newLocalBrowser launches a local Chromium instance using Rod's
// launcher and connects to it.
func newLocalBrowser(ctx context.Context) (*rod.Browser, error) {
	var l *launcher.Launcher

	if path, has := launcher.LookPath(); has {
		l = launcher.New().Bin(path)
	} else {
		l = launcher.New()
	}

	l = l.Headless(true).NoSandbox(true)

	u, err := l.Launch()
	if err != nil {
		return nil, err
	}

	browser := rod.New().ControlURL(u).Context(ctx)
	if err := browser.Connect(); err != nil {
		// Ensure the launched browser is killed if we failed to connect.
		l.Kill()
		return nil, err
	}

	return browser, nil
}
