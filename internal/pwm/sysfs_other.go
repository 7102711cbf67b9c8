//go:build !unix

package pwm

import "os"

func isRetryableSysfsErr(err error) bool {
	return os.IsPermission(err) || os.IsNotExist(err)
}
