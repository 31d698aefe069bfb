// See the file LICENSE for copyright and licensing information.

package fuse

import (
	"errors"
	"sort"
	"strings"
)

type mountConfig struct {
	options     map[string]string
	directMount bool
}

// getOptions constructs the mount option string, key-sorted so the
// result is deterministic.
func (m *mountConfig) getOptions() string {
	var opts []string
	for k, v := range m.options {
		if v != "" {
			k += "=" + v
		}
		opts = append(opts, k)
	}
	sort.Strings(opts)
	return strings.Join(opts, ",")
}

// MountOption is passed to Mount to change the behavior of the mount.
type MountOption func(*mountConfig) error

// fusermount does not understand any escaping, so an option value
// containing a comma cannot be passed through safely.
func checkOptionValue(v string) error {
	if strings.Contains(v, ",") {
		return errors.New("mount options cannot contain commas")
	}
	return nil
}

// FSName sets the file system name (also called source) that is
// visible in the list of mounted file systems.
func FSName(name string) MountOption {
	return func(conf *mountConfig) error {
		if err := checkOptionValue(name); err != nil {
			return err
		}
		conf.options["fsname"] = name
		return nil
	}
}

// Subtype sets the subtype of the mount. The main type is always
// "fuse". The type in a list of mounted file systems will look like
// "fuse.foo".
func Subtype(fstype string) MountOption {
	return func(conf *mountConfig) error {
		if err := checkOptionValue(fstype); err != nil {
			return err
		}
		conf.options["subtype"] = fstype
		return nil
	}
}

// AllowOther allows other users to access the file system. Without
// user_allow_other in /etc/fuse.conf this needs root.
func AllowOther() MountOption {
	return func(conf *mountConfig) error {
		conf.options["allow_other"] = ""
		return nil
	}
}

// DefaultPermissions makes the kernel enforce access control based on
// the file mode, instead of leaving all checks to the file system.
func DefaultPermissions() MountOption {
	return func(conf *mountConfig) error {
		conf.options["default_permissions"] = ""
		return nil
	}
}

// ReadOnly makes the mount read-only.
func ReadOnly() MountOption {
	return func(conf *mountConfig) error {
		conf.options["ro"] = ""
		return nil
	}
}

// DirectMount bypasses the fusermount helper and calls mount(2)
// directly. Requires CAP_SYS_ADMIN.
func DirectMount() MountOption {
	return func(conf *mountConfig) error {
		conf.directMount = true
		return nil
	}
}
