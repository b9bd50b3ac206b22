//go:build !linux

package config

func syncDir(dir string) error { return nil }
