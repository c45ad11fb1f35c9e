package auth

import (
	"context"
	"fmt"
	"io"

	"github.com/skratchdot/open-golang/open"
)

// Redirector sends the user agent to a provider URL.
type Redirector interface {
	Redirect(ctx context.Context, url string) error
}

// BrowserRedirector opens URLs in the system browser and echoes them to out,
// so headless users can copy the link.
type BrowserRedirector struct {
	Out io.Writer
}

func (b BrowserRedirector) Redirect(_ context.Context, url string) error {
	if b.Out != nil {
		fmt.Fprintf(b.Out, "Opening %s\n", url)
	}
	if err := open.Run(url); err != nil {
		return fmt.Errorf("failed to open browser: %w", err)
	}
	return nil
}
