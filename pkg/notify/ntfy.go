package notify

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	pkgerrors "github.com/pkg/errors"
)

// DefaultNtfyServer is the public ntfy instance.
const DefaultNtfyServer = "https://ntfy.sh"

// DefaultNtfyTopicPrefix is combined with the device suffix to form a
// topic nobody else is likely to use.
const DefaultNtfyTopicPrefix = "saltlevelmonitor-"

var _ Channel = &Ntfy{}

// Ntfy publishes to an ntfy topic.
type Ntfy struct {
	Server string
	Topic  string
	On     bool
	Client HTTPClient
}

func (n *Ntfy) Name() string { return "ntfy" }

func (n *Ntfy) Enabled() bool { return n.On && n.Topic != "" }

func (n *Ntfy) Send(ctx context.Context, title, body string) error {
	server := n.Server
	if server == "" {
		server = DefaultNtfyServer
	}
	u := strings.TrimRight(server, "/") + "/" + url.PathEscape(n.Topic)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, strings.NewReader(body))
	if err != nil {
		return pkgerrors.Wrap(err, "failed to build ntfy request")
	}
	req.Header.Set("Title", title)
	req.Header.Set("Priority", "high")
	req.Header.Set("Tags", "droplet,warning")
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")

	return do(n.Client, n.Name(), req)
}
