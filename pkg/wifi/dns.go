package wifi

import (
	"context"
	"errors"
	"net"

	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/net/dns/dnsmessage"
)

const dnsTTL = 60

// DNSResponder answers every A query with one address, so that any name a
// client looks up resolves to the portal.
type DNSResponder struct {
	addr string
	ip   net.IP
}

func NewDNSResponder(addr string, ip net.IP) *DNSResponder {
	return &DNSResponder{addr: addr, ip: ip}
}

// ListenAndServe serves until ctx is cancelled.
func (r *DNSResponder) ListenAndServe(ctx context.Context) error {
	conn, err := net.ListenPacket("udp", r.addr)
	if err != nil {
		return pkgerrors.Wrapf(err, "failed to listen on %s", r.addr)
	}

	go func() {
		<-ctx.Done()
		_ = conn.Close()
	}()

	logrus.WithField("addr", conn.LocalAddr().String()).Info("captive dns listening")
	return r.serve(ctx, conn)
}

func (r *DNSResponder) serve(ctx context.Context, conn net.PacketConn) error {
	buf := make([]byte, 512)
	for {
		n, peer, err := conn.ReadFrom(buf)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return pkgerrors.Wrap(err, "dns read failed")
		}

		resp, err := Answer(buf[:n], r.ip)
		if err != nil {
			logrus.WithError(err).WithField("peer", peer.String()).Debug("ignoring malformed dns query")
			continue
		}
		if _, err := conn.WriteTo(resp, peer); err != nil {
			logrus.WithError(err).WithField("peer", peer.String()).Debug("failed to write dns response")
		}
	}
}

// Answer builds the response to query. A and ANY questions get ip; other
// types get an empty, successful answer.
func Answer(query []byte, ip net.IP) ([]byte, error) {
	var p dnsmessage.Parser
	hdr, err := p.Start(query)
	if err != nil {
		return nil, err
	}
	if hdr.Response {
		return nil, errors.New("not a query")
	}
	q, err := p.Question()
	if err != nil {
		return nil, err
	}

	b := dnsmessage.NewBuilder(make([]byte, 0, 512), dnsmessage.Header{
		ID:                 hdr.ID,
		Response:           true,
		Authoritative:      true,
		RecursionDesired:   hdr.RecursionDesired,
		RecursionAvailable: true,
		RCode:              dnsmessage.RCodeSuccess,
	})
	b.EnableCompression()

	if err := b.StartQuestions(); err != nil {
		return nil, err
	}
	if err := b.Question(q); err != nil {
		return nil, err
	}
	if err := b.StartAnswers(); err != nil {
		return nil, err
	}

	ip4 := ip.To4()
	if ip4 != nil && q.Class == dnsmessage.ClassINET && (q.Type == dnsmessage.TypeA || q.Type == dnsmessage.TypeALL) {
		err := b.AResource(dnsmessage.ResourceHeader{
			Name:  q.Name,
			Class: dnsmessage.ClassINET,
			TTL:   dnsTTL,
		}, dnsmessage.AResource{A: [4]byte(ip4)})
		if err != nil {
			return nil, err
		}
	}

	return b.Finish()
}
