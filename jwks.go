package main

import (
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"math/big"
	"net/http"
)

// JWKS publishes the portal token verification key so other services can
// check portal tokens without calling back.
type JWKS struct {
	Keys []JWK `json:"keys"`
}

type JWK struct {
	Kid string   `json:"kid"`
	Kty string   `json:"kty"`
	Alg string   `json:"alg"`
	Use string   `json:"use"`
	N   string   `json:"n"`
	E   string   `json:"e"`
	X5c []string `json:"x5c,omitempty"`
}

func rsaPublicKeyToJWK(publicKey *rsa.PublicKey, kid string) (*JWK, error) {
	der, err := x509.MarshalPKIXPublicKey(publicKey)
	if err != nil {
		return nil, err
	}

	return &JWK{
		Kid: kid,
		Kty: "RSA",
		Alg: "RS256",
		Use: "sig",
		N:   base64.RawURLEncoding.EncodeToString(publicKey.N.Bytes()),
		E:   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(publicKey.E)).Bytes()),
		X5c: []string{base64.StdEncoding.EncodeToString(der)},
	}, nil
}

func (s *Server) handleJWKS(w http.ResponseWriter, r *http.Request) {
	jwk, err := rsaPublicKeyToJWK(s.tokenManager.GetPublicKey(), s.tokenManager.KeyID())
	if err != nil {
		s.logError(err, "failed to convert public key to JWK")
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Cache-Control", "public, max-age=3600")
	s.writeJSON(w, http.StatusOK, JWKS{Keys: []JWK{*jwk}})
}
