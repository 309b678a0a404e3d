package config

import (
	"time"

	"immoscoutclient/pkg/impersonate"
)

const (
	BackendResty = "resty"
	BackendFiber = "fiber"

	DefaultUserAgent = "ImmoScout24_1410_30_._"
)

type Config struct {
	// BaseURL is prefixed to relative request paths. The API client always
	// sends absolute URLs, so it is normally empty.
	BaseURL               string
	Backend               string
	Size                  int
	RequestTimeout        time.Duration
	DialTimeout           time.Duration
	TlsTimeout            time.Duration
	IdleConnTimeout       time.Duration
	MaxConnsPerHost       int
	InsecureSkipVerify    bool
	ResponseHeaderTimeout time.Duration
	Impersonate           impersonate.Profile
	UserAgent             string
}

func DefaultConfig() Config {
	return Config{
		BaseURL:               "",
		Backend:               BackendResty,
		Size:                  1,
		RequestTimeout:        30 * time.Second,
		DialTimeout:           5 * time.Second,
		TlsTimeout:            5 * time.Second,
		IdleConnTimeout:       90 * time.Second,
		MaxConnsPerHost:       0,
		InsecureSkipVerify:    false,
		ResponseHeaderTimeout: 0,
		Impersonate:           impersonate.OkHttp5,
		UserAgent:             DefaultUserAgent,
	}
}
