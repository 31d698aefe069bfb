// See the file LICENSE for copyright and licensing information.

package fuse

import (
	"errors"
	"fmt"
	"os"
	"os/exec"

	"golang.org/x/sys/unix"
)

// mount attaches a new FUSE file system at dir and returns the device
// file requests will arrive on.
//
// The fusermount helper is the normal path: it is setuid root, so
// unprivileged processes can mount. A direct mount(2) skips the
// helper for processes that hold CAP_SYS_ADMIN.
func mount(dir string, conf *mountConfig) (*os.File, error) {
	fi, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("fuse: mountpoint: %v", err)
	}
	if !fi.IsDir() {
		return nil, fmt.Errorf("fuse: mountpoint %s is not a directory", dir)
	}

	if conf.directMount {
		return mountDirect(dir, fi, conf)
	}
	return mountFusermount(dir, conf)
}

func mountDirect(dir string, fi os.FileInfo, conf *mountConfig) (*os.File, error) {
	fd, err := unix.Open("/dev/fuse", unix.O_RDWR|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, fmt.Errorf("fuse: open /dev/fuse: %v", err)
	}

	rootmode := uint32(fi.Mode().Perm()) | unix.S_IFDIR
	opts := fmt.Sprintf("fd=%d,rootmode=%o,user_id=%d,group_id=%d",
		fd, rootmode, os.Getuid(), os.Getgid())

	source := "fuse"
	fstype := "fuse"
	var flags uintptr = unix.MS_NOSUID | unix.MS_NODEV
	for k, v := range conf.options {
		switch k {
		case "fsname":
			source = v
		case "subtype":
			fstype = "fuse." + v
		case "ro":
			flags |= unix.MS_RDONLY
		default:
			opts += "," + k
			if v != "" {
				opts += "=" + v
			}
		}
	}

	if err := unix.Mount(source, dir, fstype, flags, opts); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("fuse: mount: %v", err)
	}
	return os.NewFile(uintptr(fd), "/dev/fuse"), nil
}

func mountFusermount(dir string, conf *mountConfig) (*os.File, error) {
	// fusermount passes the device fd back over a socket pair.
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return nil, fmt.Errorf("fuse: socketpair: %v", err)
	}
	writeSock := os.NewFile(uintptr(fds[0]), "fusermount-comm")
	defer writeSock.Close()
	readFd := fds[1]

	bin := "fusermount3"
	if _, err := exec.LookPath(bin); err != nil {
		bin = "fusermount"
	}

	var args []string
	if opts := conf.getOptions(); opts != "" {
		args = append(args, "-o", opts)
	}
	args = append(args, "--", dir)

	cmd := exec.Command(bin, args...)
	// The helper looks up the communication socket by the fd number in
	// _FUSE_COMMFD; ExtraFiles places it at fd 3 in the child.
	cmd.Env = append(os.Environ(), "_FUSE_COMMFD=3")
	cmd.ExtraFiles = []*os.File{writeSock}
	out, err := cmd.CombinedOutput()
	if err != nil {
		unix.Close(readFd)
		if len(out) > 0 {
			return nil, fmt.Errorf("fuse: fusermount: %v: %s", err, out)
		}
		return nil, fmt.Errorf("fuse: fusermount: %v", err)
	}

	buf := make([]byte, 1)
	oob := make([]byte, unix.CmsgSpace(4))
	_, oobn, _, _, err := unix.Recvmsg(readFd, buf, oob, 0)
	unix.Close(readFd)
	if err != nil {
		return nil, fmt.Errorf("fuse: recvmsg from fusermount: %v", err)
	}

	msgs, err := unix.ParseSocketControlMessage(oob[:oobn])
	if err != nil {
		return nil, fmt.Errorf("fuse: parse fusermount control message: %v", err)
	}
	for _, msg := range msgs {
		devFds, err := unix.ParseUnixRights(&msg)
		if err != nil {
			continue
		}
		if len(devFds) > 0 {
			unix.CloseOnExec(devFds[0])
			return os.NewFile(uintptr(devFds[0]), "/dev/fuse"), nil
		}
	}
	return nil, errors.New("fuse: fusermount did not pass a device fd")
}

func openCuseDevice() (*os.File, error) {
	return os.OpenFile("/dev/cuse", os.O_RDWR, 0)
}

// Unmount detaches the file system mounted at dir. A lazy unmount is
// tried first so a busy mount still detaches; unprivileged processes
// fall back to the fusermount helper.
func Unmount(dir string) error {
	if err := unix.Unmount(dir, unix.MNT_DETACH); err == nil {
		return nil
	}
	if err := unix.Unmount(dir, 0); err == nil {
		return nil
	}

	bin := "fusermount3"
	if _, err := exec.LookPath(bin); err != nil {
		bin = "fusermount"
	}
	cmd := exec.Command(bin, "-u", dir)
	if out, err := cmd.CombinedOutput(); err != nil {
		if len(out) > 0 {
			return fmt.Errorf("fuse: fusermount -u: %v: %s", err, out)
		}
		return fmt.Errorf("fuse: fusermount -u: %v", err)
	}
	return nil
}
