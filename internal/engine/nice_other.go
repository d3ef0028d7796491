//go:build !unix

package engine

func setNice(pid, nice int) error { return nil }
