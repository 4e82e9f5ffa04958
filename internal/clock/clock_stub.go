//go:build !linux

package clock

var nowNsFn = fallbackNs
