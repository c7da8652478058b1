package models

import "time"

const (
	// DefaultTimezone is where the operator spreadsheets live.
	DefaultTimezone = "America/Sao_Paulo"

	// DedupWindow suppresses repeated deliveries per (phone, kind).
	DedupWindow = 30 * time.Second

	// IPWindow and IPLimit cap inbound volume per source IP.
	IPWindow = 60 * time.Second
	IPLimit  = 120

	// TenantCacheRefresh bounds staleness of the tenant cache.
	TenantCacheRefresh = 5 * time.Minute

	// MappingCacheTTL bounds staleness of a column mapping entry.
	MappingCacheTTL = time.Hour

	// PhoneTailLen is how many trailing digits are compared when matching a
	// sheet phone cell against an inbound phone.
	PhoneTailLen = 9

	// WorkerQueueSize is the in-memory lane buffer when redis is down.
	WorkerQueueSize = 1000

	// AutomationMarker is appended to names written by the system so
	// operators can tell automated rows from hand-entered ones.
	AutomationMarker = " ⚡"
)
