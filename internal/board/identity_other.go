//go:build !unix

package board

import "os"

func nodeName() string {
	h, err := os.Hostname()
	if err != nil {
		return "unknown"
	}
	return h
}
