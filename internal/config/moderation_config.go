package config

import "time"

const (
	// Content
	MaxContentLength = 250

	// Repetition: the RepeatLimit-th consecutive identical message is blocked.
	RepeatLimit = 3

	// Sliding window rate limit
	RateLimitMessages = 10
	RateLimitWindow   = 60 * time.Second

	// Connections
	SendQueueSize = 256
)
