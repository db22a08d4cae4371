package serial

import (
	"fmt"
	"unsafe"

	ioctl "github.com/daedaluz/goioctl"
)

// OpenPTY opens a pseudoterminal pair and returns the master and slave
// ports. The mock programmer in testsupport sits on the slave end while the
// transport under test drives the master, so the DTR probe and polled reads
// run through the same ioctl path they take on a real serial device.
func OpenPTY() (*Port, *Port, error) {
	master, err := Open("/dev/ptmx", nil)
	if err != nil {
		return nil, nil, wrapErr("open /dev/ptmx", err)
	}
	if err := master.unlockPT(); err != nil {
		master.Close()
		return nil, nil, wrapErr("unlock pty slave", err)
	}
	slave, err := master.openPTPeer()
	if err != nil {
		master.Close()
		return nil, nil, wrapErr("open pty slave", err)
	}
	return master, slave, nil
}

// unlockPT clears the slave lock on a master pty so the peer can be opened.
func (p *Port) unlockPT() error {
	var unlock int32
	return ioctl.Ioctl(uintptr(p.f), tiocsptlck, uintptr(unsafe.Pointer(&unlock)))
}

// openPTPeer resolves the master's pty number and opens the matching
// /dev/pts device with a copy of the master's open options.
func (p *Port) openPTPeer() (*Port, error) {
	var ptn uint32
	if err := ioctl.Ioctl(uintptr(p.f), tiocgptn, uintptr(unsafe.Pointer(&ptn))); err != nil {
		return nil, err
	}
	opts := *p.options
	return Open(fmt.Sprintf("/dev/pts/%d", ptn), &opts)
}
