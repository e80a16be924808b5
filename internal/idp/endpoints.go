// Package idp talks to the identity provider (Keycloak): readiness probing,
// admin authentication, client lookup and client secret read/regenerate.
package idp

import (
	"net/url"
	"strings"
	"time"
)

const (
	// DefaultAdminClientID is the bootstrap client Keycloak ships for admin logins.
	DefaultAdminClientID = "admin-cli"
	// DefaultAdminRealm is the realm that holds the administrative user.
	DefaultAdminRealm = "master"
	// DefaultTimeout bounds every single request to the provider.
	DefaultTimeout = 10 * time.Second

	maxBodySize = 1 << 20
)

// Config describes how to reach the provider and which admin identity to use.
type Config struct {
	BaseURL       string
	Realm         string
	AdminRealm    string
	AdminClientID string
	AdminUsername string
	AdminPassword string
	HealthPath    string
	Timeout       time.Duration
}

func (c Config) withDefaults() Config {
	if c.AdminRealm == "" {
		c.AdminRealm = DefaultAdminRealm
	}
	if c.AdminClientID == "" {
		c.AdminClientID = DefaultAdminClientID
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	c.BaseURL = strings.TrimRight(c.BaseURL, "/")
	return c
}

// TokenURL returns the OpenID Connect token endpoint of a realm.
func TokenURL(baseURL, realm string) string {
	return realmURL(baseURL, realm) + "/protocol/openid-connect/token"
}

// UserInfoURL returns the OpenID Connect userinfo endpoint of a realm.
func UserInfoURL(baseURL, realm string) string {
	return realmURL(baseURL, realm) + "/protocol/openid-connect/userinfo"
}

// LogoutURL returns the OpenID Connect end-session endpoint of a realm.
func LogoutURL(baseURL, realm string) string {
	return realmURL(baseURL, realm) + "/protocol/openid-connect/logout"
}

func realmURL(baseURL, realm string) string {
	return strings.TrimRight(baseURL, "/") + "/realms/" + url.PathEscape(realm)
}

func adminRealmURL(baseURL, realm string) string {
	return strings.TrimRight(baseURL, "/") + "/admin/realms/" + url.PathEscape(realm)
}

func clientsURL(baseURL, realm, clientID string) string {
	return adminRealmURL(baseURL, realm) + "/clients?clientId=" + url.QueryEscape(clientID)
}

func clientSecretURL(baseURL, realm, internalID string) string {
	return adminRealmURL(baseURL, realm) + "/clients/" + url.PathEscape(internalID) + "/client-secret"
}

// healthURL prefers the configured health path and falls back to the realm
// endpoint, which only answers once the realm is loaded.
func healthURL(cfg Config) string {
	if cfg.HealthPath != "" {
		return cfg.BaseURL + "/" + strings.TrimLeft(cfg.HealthPath, "/")
	}
	return realmURL(cfg.BaseURL, cfg.Realm)
}
