//go:build linux

package arena

import "golang.org/x/sys/unix"

func mmapAnon(length int) ([]byte, error) {
	return unix.Mmap(-1, 0, length, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_PRIVATE)
}

func munmapAnon(buf []byte) error {
	return unix.Munmap(buf)
}
