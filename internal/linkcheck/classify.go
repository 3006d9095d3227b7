package linkcheck

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"net"
	"strings"
	"syscall"

	"github.com/nao1215/pdfaudit/internal/model"
	"github.com/nao1215/pdfaudit/internal/transport"
)

// classifyError maps a transport error to an Unreachable status and reports
// whether another attempt might succeed.
func classifyError(err error) (model.LinkStatus, bool) {
	if errors.Is(err, transport.ErrRedirectLimit) {
		return model.Unreachable(model.ReasonRedirectLimit), false
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return model.Unreachable(model.ReasonTimeout), true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return model.Unreachable(model.ReasonTimeout), true
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return model.Unreachable(model.ReasonDNS), !dnsErr.IsNotFound
	}

	if errors.Is(err, syscall.ECONNREFUSED) {
		return model.Unreachable(model.ReasonRefused), true
	}
	if errors.Is(err, syscall.ECONNRESET) {
		return model.Unreachable(model.ReasonReset), true
	}

	if isTLSError(err) {
		return model.Unreachable(model.ReasonTLS), false
	}

	return model.Unreachable(model.ReasonConnection), true
}

func isTLSError(err error) bool {
	var (
		verifyErr   *tls.CertificateVerificationError
		recordErr   tls.RecordHeaderError
		unknownCA   x509.UnknownAuthorityError
		hostnameErr x509.HostnameError
		invalidCert x509.CertificateInvalidError
	)
	switch {
	case errors.As(err, &verifyErr),
		errors.As(err, &recordErr),
		errors.As(err, &unknownCA),
		errors.As(err, &hostnameErr),
		errors.As(err, &invalidCert):
		return true
	}
	return strings.Contains(err.Error(), "tls: ")
}
