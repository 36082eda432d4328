package main

import (
	"time"

	"github.com/nodewire/remotefs/pkg/config"
)

// durationOf unwraps a config.Duration into the time.Duration every
// package outside pkg/config deals in.
func durationOf(d config.Duration) time.Duration {
	return time.Duration(d)
}
