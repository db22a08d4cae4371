package serial

import (
	ioctl "github.com/daedaluz/goioctl"
	"unsafe"
)

var (
	tcgets = uintptr(0x5401)
	tcsets = uintptr(0x5402) // SetAttr adds the Action on top of this base

	tcflsh = uintptr(0x540B)

	tiocmget = uintptr(0x5415) // get modem line status
	tiocmbis = uintptr(0x5416) // set indicated modem bits
	tiocmbic = uintptr(0x5417) // clear indicated modem bits

	tiocgptn   = ioctl.IOR('T', 0x30, unsafe.Sizeof(uint32(0)))
	tiocsptlck = ioctl.IOW('T', 0x31, unsafe.Sizeof(int32(0)))
)
