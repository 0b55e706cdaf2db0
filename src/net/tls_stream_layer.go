package net

import (
	"crypto/tls"
	"crypto/x509"
	"net"
	"time"

	"github.com/sirupsen/logrus"
)

// TLSStreamLayer implements StreamLayer interface for mutually-authenticated
// TLS over TCP.
type TLSStreamLayer struct {
	advertise string
	listener  net.Listener
	config    *tls.Config
}

// Dial implements the StreamLayer interface. For certificate verification,
// the ServerName in the config needs to match one of the names in the server
// certificate, so deployments use one certificate per cluster rather than
// per worker.
func (t *TLSStreamLayer) Dial(address string, timeout time.Duration) (net.Conn, error) {
	dialer := net.Dialer{Timeout: timeout}
	return tls.DialWithDialer(&dialer, "tcp", address, t.config)
}

// Accept implements the net.Listener interface.
func (t *TLSStreamLayer) Accept() (c net.Conn, err error) {
	return t.listener.Accept()
}

// Close implements the net.Listener interface.
func (t *TLSStreamLayer) Close() (err error) {
	return t.listener.Close()
}

// Addr implements the net.Listener interface.
func (t *TLSStreamLayer) Addr() net.Addr {
	return t.listener.Addr()
}

// AdvertiseAddr implements the StreamLayer interface.
func (t *TLSStreamLayer) AdvertiseAddr() string {
	// Use an advertise addr if provided
	if t.advertise != "" {
		return t.advertise
	}
	return t.listener.Addr().String()
}

// NewTLSTransport returns a NetworkTransport that is built on top of a TLS
// streaming transport layer. The config must carry a certificate; use
// TLSConfig to build one that also requires client certificates.
func NewTLSTransport(
	bindAddr string,
	advertise string,
	maxPool int,
	timeout time.Duration,
	config *tls.Config,
	logger *logrus.Entry,
) (*NetworkTransport, error) {

	listener, err := tls.Listen("tcp", bindAddr, config)
	if err != nil {
		return nil, err
	}

	stream := &TLSStreamLayer{
		advertise: advertise,
		listener:  listener,
		config:    config,
	}

	return NewNetworkTransport(stream, maxPool, timeout, logger), nil
}

// TLSConfig builds a tls.Config for mutually-authenticated connections
// between workers. If trustedCAs is nil, the system pool is used.
func TLSConfig(serverName string, certificates []tls.Certificate, trustedCAs *x509.CertPool) (*tls.Config, error) {
	if trustedCAs == nil {
		pool, err := x509.SystemCertPool()
		if err != nil {
			return nil, err
		}
		trustedCAs = pool
	}

	conf := tls.Config{
		ServerName:   serverName,
		Certificates: certificates,
		RootCAs:      trustedCAs,
		ClientCAs:    trustedCAs,
		MinVersion:   tls.VersionTLS12,
		ClientAuth:   tls.RequireAndVerifyClientCert,
	}

	return &conf, nil
}
