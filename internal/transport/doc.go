// Package transport builds the HTTP clients used for link checks.
//
// A Client optionally routes connections through a SOCKS5 proxy, applies the
// configured User-Agent and per-host headers on every hop and enforces the
// redirect limit. CheckConnection probes the proxy with a SOCKS5 handshake so
// a misconfigured proxy is reported before hundreds of checks fail with
// connection errors.
package transport
