// Package http2 implements a transport-agnostic HTTP/2 protocol engine:
// frame codec, HPACK compression, and the connection/stream state
// machines from RFC 7540/7541, plus ALTSVC/ORIGIN (RFC 7838/8336).
//
// The engine never touches a socket. A caller feeds inbound bytes to
// Connection.Receive and reads outbound frames back through the
// signals subscribed via Connection.Subscribe; everything else
// (listening, dialing, TLS, ALPN) lives outside this package. See
// the h2fasthttp subpackage for a concrete net.Conn-shaped adaptor.
package http2
