package notify

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	pkgerrors "github.com/pkg/errors"
)

// DefaultBarkServer is the public Bark relay.
const DefaultBarkServer = "https://api.day.app"

var _ Channel = &Bark{}

// Bark pushes to the Bark iOS app.
type Bark struct {
	Server string
	Key    string
	On     bool
	Client HTTPClient
}

func (b *Bark) Name() string { return "bark" }

func (b *Bark) Enabled() bool { return b.On && b.Key != "" }

// Send issues GET {server}/{key}/{title}/{body}.
func (b *Bark) Send(ctx context.Context, title, body string) error {
	server := b.Server
	if server == "" {
		server = DefaultBarkServer
	}
	u := strings.TrimRight(server, "/") + "/" +
		url.PathEscape(b.Key) + "/" +
		url.PathEscape(title) + "/" +
		url.PathEscape(body)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return pkgerrors.Wrap(err, "failed to build bark request")
	}
	return do(b.Client, b.Name(), req)
}
