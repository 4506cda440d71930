package server

import (
	"context"

	"github.com/antoinenguyen27/siren/pkg/browser"
	"github.com/antoinenguyen27/siren/pkg/demo"
)

type managerBrowser struct {
	*browser.Manager
}

// FromManager exposes a playwright browser manager as the API's Browser.
func FromManager(m *browser.Manager) Browser {
	return managerBrowser{Manager: m}
}

func (b managerBrowser) Start(ctx context.Context) (WorkPage, error) {
	p, err := b.Manager.Start(ctx)
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (b managerBrowser) Attach(ctx context.Context, cdpURL, tabURL string) (demo.Page, error) {
	p, err := b.Manager.Attach(ctx, cdpURL, tabURL)
	if err != nil {
		return nil, err
	}
	return p, nil
}
