// Package impersonate maps client impersonation profiles onto uTLS
// ClientHello specs so the TLS handshake looks like the chosen client.
package impersonate

import (
	"errors"
	"fmt"
	"strings"

	utls "github.com/refraction-networking/utls"
)

var ErrUnknownProfile = errors.New("impersonate: unknown profile")

// Profile names the client whose TLS fingerprint is mimicked.
type Profile string

const (
	// None uses the Go crypto/tls ClientHello.
	None      Profile = "none"
	OkHttp3   Profile = "OkHttp3"
	OkHttp4   Profile = "OkHttp4"
	OkHttp5   Profile = "OkHttp5"
	Chrome    Profile = "Chrome"
	Firefox   Profile = "Firefox"
	Safari    Profile = "Safari"
	SafariIOS Profile = "SafariIOS"
	Edge      Profile = "Edge"
)

// OkHttp runs on Android's Conscrypt provider, so every OkHttp major
// shares the BoringSSL hello built by okHTTPSpec.
var presets = map[Profile]func() (utls.ClientHelloSpec, error){
	OkHttp3:   okHTTPSpec,
	OkHttp4:   okHTTPSpec,
	OkHttp5:   okHTTPSpec,
	Chrome:    fromID(utls.HelloChrome_Auto),
	Firefox:   fromID(utls.HelloFirefox_Auto),
	Safari:    fromID(utls.HelloSafari_Auto),
	SafariIOS: fromID(utls.HelloIOS_Auto),
	Edge:      fromID(utls.HelloEdge_Auto),
}

func fromID(id utls.ClientHelloID) func() (utls.ClientHelloSpec, error) {
	return func() (utls.ClientHelloSpec, error) { return utls.UTLSIdToSpec(id) }
}

// okHTTPSpec is the Conscrypt ClientHello: TLS 1.3 and 1.2, X25519 key
// share, ALPN h2 then http/1.1, OkHttp's MODERN_TLS cipher list.
func okHTTPSpec() (utls.ClientHelloSpec, error) {
	return utls.ClientHelloSpec{
		CipherSuites: []uint16{
			utls.TLS_AES_128_GCM_SHA256,
			utls.TLS_AES_256_GCM_SHA384,
			utls.TLS_CHACHA20_POLY1305_SHA256,
			utls.TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256,
			utls.TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256,
			utls.TLS_ECDHE_ECDSA_WITH_AES_256_GCM_SHA384,
			utls.TLS_ECDHE_RSA_WITH_AES_256_GCM_SHA384,
			utls.TLS_ECDHE_ECDSA_WITH_CHACHA20_POLY1305,
			utls.TLS_ECDHE_RSA_WITH_CHACHA20_POLY1305,
			utls.TLS_ECDHE_RSA_WITH_AES_128_CBC_SHA,
			utls.TLS_ECDHE_RSA_WITH_AES_256_CBC_SHA,
			utls.TLS_RSA_WITH_AES_128_GCM_SHA256,
			utls.TLS_RSA_WITH_AES_256_GCM_SHA384,
			utls.TLS_RSA_WITH_AES_128_CBC_SHA,
			utls.TLS_RSA_WITH_AES_256_CBC_SHA,
		},
		CompressionMethods: []uint8{0x00},
		Extensions: []utls.TLSExtension{
			&utls.SNIExtension{},
			&utls.ExtendedMasterSecretExtension{},
			&utls.RenegotiationInfoExtension{Renegotiation: utls.RenegotiateOnceAsClient},
			&utls.SupportedCurvesExtension{Curves: []utls.CurveID{
				utls.X25519,
				utls.CurveP256,
				utls.CurveP384,
			}},
			&utls.SupportedPointsExtension{SupportedPoints: []uint8{0x00}},
			&utls.SessionTicketExtension{},
			&utls.ALPNExtension{AlpnProtocols: []string{"h2", "http/1.1"}},
			&utls.StatusRequestExtension{},
			&utls.SignatureAlgorithmsExtension{SupportedSignatureAlgorithms: []utls.SignatureScheme{
				utls.ECDSAWithP256AndSHA256,
				utls.PSSWithSHA256,
				utls.PKCS1WithSHA256,
				utls.ECDSAWithP384AndSHA384,
				utls.PSSWithSHA384,
				utls.PKCS1WithSHA384,
				utls.PSSWithSHA512,
				utls.PKCS1WithSHA512,
				utls.PKCS1WithSHA1,
			}},
			&utls.KeyShareExtension{KeyShares: []utls.KeyShare{{Group: utls.X25519}}},
			&utls.PSKKeyExchangeModesExtension{Modes: []uint8{utls.PskModeDHE}},
			&utls.SupportedVersionsExtension{Versions: []uint16{
				utls.VersionTLS13,
				utls.VersionTLS12,
			}},
			&utls.UtlsPaddingExtension{GetPaddingLen: utls.BoringPaddingStyle},
		},
	}, nil
}

// Profiles lists every supported profile, None first.
func Profiles() []Profile {
	return []Profile{None, OkHttp3, OkHttp4, OkHttp5, Chrome, Firefox, Safari, SafariIOS, Edge}
}

// Parse resolves a profile name case-insensitively. An empty name is None.
func Parse(name string) (Profile, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return None, nil
	}
	for _, p := range Profiles() {
		if strings.EqualFold(string(p), name) {
			return p, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownProfile, name)
}

// Fingerprinted reports whether the profile replaces the Go ClientHello.
func (p Profile) Fingerprinted() bool {
	_, ok := presets[p]
	return ok
}

// ClientHelloSpec returns a fresh spec; uTLS mutates extensions while
// handshaking, so specs are never shared between connections.
func (p Profile) ClientHelloSpec() (utls.ClientHelloSpec, error) {
	build, ok := presets[p]
	if !ok {
		return utls.ClientHelloSpec{}, fmt.Errorf("%w: %q has no ClientHello", ErrUnknownProfile, p)
	}
	hello, err := build()
	if err != nil {
		return utls.ClientHelloSpec{}, fmt.Errorf("impersonate: build %s ClientHello: %w", p, err)
	}
	return hello, nil
}

func (p Profile) String() string { return string(p) }
