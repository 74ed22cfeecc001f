package h2fasthttp

import (
	"crypto/tls"

	http2 "github.com/dgrr/h2e"
	"github.com/valyala/fasthttp"
	"golang.org/x/crypto/acme"
	"golang.org/x/crypto/acme/autocert"
)

// ConfigureServer registers h2fasthttp as the TLS ALPN "h2" handler
// for s, grounded on the teacher's fasthttp2.ConfigureServer. The
// fasthttp server must be started with TLS for ALPN negotiation to
// ever select "h2"; a plain-TCP listener only ever gets http/1.1.
func ConfigureServer(s *fasthttp.Server) *Server {
	srv := NewServer(s)
	s.NextProto(http2.H2TLSProto, srv.ServeConn)
	return srv
}

// ConfigureServerAndConfig is ConfigureServer plus appending "h2" (and,
// when m is non-nil, the ACME TLS-ALPN-01 challenge proto) to an
// explicit tls.Config's NextProtos, grounded on the teacher's
// ConfigureServerAndConfig and its examples/autocert/main.go, which
// wires golang.org/x/crypto/acme/autocert's certificate manager
// through the same NextProtos slice.
func ConfigureServerAndConfig(s *fasthttp.Server, tlsConfig *tls.Config, m *autocert.Manager) *Server {
	srv := ConfigureServer(s)

	tlsConfig.NextProtos = append(tlsConfig.NextProtos, http2.H2TLSProto)
	if m != nil {
		tlsConfig.GetCertificate = m.GetCertificate
		tlsConfig.NextProtos = append(tlsConfig.NextProtos, acme.ALPNProto)
	}

	return srv
}

// ConfigureClient prepares a *fasthttp.HostClient's TLS config to
// negotiate "h2", grounded on the teacher's fasthttp2.ConfigureClient.
// Unlike the teacher, it does not dial or install a Transport itself
// — see NewClient for the engine-driven request path.
func ConfigureClient(c *fasthttp.HostClient) {
	tlsConfig := c.TLSConfig
	if tlsConfig == nil {
		tlsConfig = &tls.Config{
			MinVersion: tls.VersionTLS12,
			MaxVersion: tls.VersionTLS13,
		}
	}
	tlsConfig.NextProtos = append(tlsConfig.NextProtos, http2.H2TLSProto)
	c.TLSConfig = tlsConfig
}
