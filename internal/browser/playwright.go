package browser

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/playwright-community/playwright-go"
)

type PlaywrightConfig struct {
	Headless          bool
	Args              []string
	UserAgent         string
	ViewportWidth     int
	ViewportHeight    int
	TargetURL         string
	NavigationTimeout time.Duration
	// Install downloads the driver and Chromium before the first launch.
	Install bool
}

// PlaywrightDriver runs one headless Chromium and opens a fresh browser
// context per session.
type PlaywrightDriver struct {
	config PlaywrightConfig

	pw      *playwright.Playwright
	browser playwright.Browser
}

func NewPlaywrightDriver(config PlaywrightConfig) *PlaywrightDriver {
	if config.NavigationTimeout == 0 {
		config.NavigationTimeout = 30 * time.Second
	}
	if config.ViewportWidth == 0 {
		config.ViewportWidth = 1920
	}
	if config.ViewportHeight == 0 {
		config.ViewportHeight = 1080
	}
	return &PlaywrightDriver{config: config}
}

func (d *PlaywrightDriver) Launch(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if d.config.Install {
		if err := playwright.Install(&playwright.RunOptions{
			Browsers: []string{"chromium"},
			Verbose:  false,
		}); err != nil {
			return fmt.Errorf("install playwright: %w", err)
		}
	}

	pw, err := playwright.Run()
	if err != nil {
		return fmt.Errorf("start playwright: %w", err)
	}

	browser, err := pw.Chromium.Launch(playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(d.config.Headless),
		Args:     d.config.Args,
	})
	if err != nil {
		_ = pw.Stop()
		return fmt.Errorf("launch chromium: %w", err)
	}

	d.pw = pw
	d.browser = browser
	return nil
}

// NewContext opens an isolated context, installs the stealth script and
// navigates to the warm-up page so the upstream accepts in-page requests.
func (d *PlaywrightDriver) NewContext(ctx context.Context) (Context, error) {
	if d.browser == nil {
		return nil, fmt.Errorf("%w: browser not launched", ErrInitialization)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	bc, err := d.browser.NewContext(playwright.BrowserNewContextOptions{
		UserAgent: playwright.String(d.config.UserAgent),
		Viewport: &playwright.Size{
			Width:  d.config.ViewportWidth,
			Height: d.config.ViewportHeight,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("create browser context: %w", err)
	}

	page, err := bc.NewPage()
	if err != nil {
		bc.Close()
		return nil, fmt.Errorf("create page: %w", err)
	}

	if err := page.AddInitScript(playwright.Script{Content: playwright.String(stealthScript)}); err != nil {
		bc.Close()
		return nil, fmt.Errorf("add init script: %w", err)
	}

	if _, err := page.Goto(d.config.TargetURL, playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateNetworkidle,
		Timeout:   playwright.Float(float64(d.config.NavigationTimeout.Milliseconds())),
	}); err != nil {
		bc.Close()
		return nil, fmt.Errorf("%w: %v", ErrNavigation, err)
	}

	return &pageContext{context: bc, page: page}, nil
}

func (d *PlaywrightDriver) Close() error {
	var firstErr error
	if d.browser != nil {
		if err := d.browser.Close(); err != nil {
			firstErr = err
		}
		d.browser = nil
	}
	if d.pw != nil {
		if err := d.pw.Stop(); err != nil && firstErr == nil {
			firstErr = err
		}
		d.pw = nil
	}
	return firstErr
}

type pageContext struct {
	context playwright.BrowserContext
	page    playwright.Page

	closeOnce sync.Once
	closeErr  error
}

func (c *pageContext) Evaluate(expression string, arg ...interface{}) (interface{}, error) {
	return c.page.Evaluate(expression, arg...)
}

func (c *pageContext) ExposeFunction(name string, binding playwright.ExposedFunction) error {
	return c.page.ExposeFunction(name, binding)
}

func (c *pageContext) Close() error {
	c.closeOnce.Do(func() {
		if err := c.page.Close(); err != nil {
			c.closeErr = err
		}
		if err := c.context.Close(); err != nil && c.closeErr == nil {
			c.closeErr = err
		}
	})
	return c.closeErr
}
