//go:build unix

package board

import "golang.org/x/sys/unix"

var unameFn = unix.Uname

func nodeName() string {
	var u unix.Utsname
	if err := unameFn(&u); err != nil {
		return "unknown"
	}
	return unix.ByteSliceToString(u.Nodename[:])
}
