package server

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"syscall"

	"github.com/go-ftpd/xcryptftp/internal/pathjail"
)

// FSDriver implements Driver using the local filesystem.
//
// Security Model:
//   - All file operations are confined to the root path via internal/pathjail,
//     which resolves and validates every user-supplied path before it ever
//     reaches an os.* call.
//   - Path traversal attacks (../) are rejected by pathjail.Resolve.
//   - Read-only mode is enforced at the operation level.
//   - Each user session gets an isolated ClientContext.
//
// The root path is canonicalized once via filepath.EvalSymlinks at driver
// construction, so every later prefix comparison inside pathjail stays
// textually sound even if a symlink inside the tree points elsewhere.
//
// Default behavior (no options):
//   - Allows anonymous login ("ftp" or "anonymous" users only)
//   - Anonymous users have read-only access
//   - All operations are confined to the root path
type FSDriver struct {
	rootPath string // canonicalized root directory for the server

	// authenticator is an optional hook to validate credentials and return the
	// root path for the user. If nil, defaults to strict anonymous-only, read-only access,
	// unless disableAnonymous is true.
	// Arguments: user, pass, host
	// Returns: rootPath, readOnly, error
	authenticator func(user, pass, host string) (string, bool, error)

	// disableAnonymous, if true, prevents the default behavior of allowing anonymous
	// logins when no authenticator is provided.
	disableAnonymous bool

	// enableAnonWrite, if true, allows anonymous users to perform write operations
	// (upload, mkdir, delete, etc.). Default is false (read-only).
	enableAnonWrite bool

	settings *Settings // Optional server settings
}

// FSDriverOption is a functional option for configuring an FSDriver.
type FSDriverOption func(*FSDriver)

// NewFSDriver creates a new filesystem driver with the given root path and options.
// Returns an error if the root path does not exist or is not a directory.
func NewFSDriver(rootPath string, options ...FSDriverOption) (*FSDriver, error) {
	info, err := os.Stat(rootPath)
	if err != nil {
		return nil, fmt.Errorf("root path validation failed: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("root path is not a directory: %s", rootPath)
	}

	rootPath, err = filepath.EvalSymlinks(rootPath)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve root path: %w", err)
	}

	d := &FSDriver{rootPath: rootPath}
	for _, opt := range options {
		opt(d)
	}
	return d, nil
}

// WithAuthenticator sets a custom authentication function.
func WithAuthenticator(fn func(user, pass, host string) (string, bool, error)) FSDriverOption {
	return func(d *FSDriver) {
		d.authenticator = fn
	}
}

// WithDisableAnonymous disables anonymous login.
func WithDisableAnonymous(disable bool) FSDriverOption {
	return func(d *FSDriver) {
		d.disableAnonymous = disable
	}
}

// WithAnonWrite enables write access for anonymous users. Default read-only.
func WithAnonWrite(enable bool) FSDriverOption {
	return func(d *FSDriver) {
		d.enableAnonWrite = enable
	}
}

// WithSettings sets server-specific settings for the driver.
func WithSettings(settings *Settings) FSDriverOption {
	return func(d *FSDriver) {
		d.settings = settings
	}
}

// Authenticate returns a new fsContext for the user. It uses the
// authenticator hook if provided. Otherwise, it enforces strict
// anonymous-only, read-only access rooted at the root path — only
// "anonymous" and "ftp" are accepted; the password is ignored.
func (d *FSDriver) Authenticate(user, pass, host string) (ClientContext, error) {
	rootPath := d.rootPath
	readOnly := false

	if d.authenticator != nil {
		var err error
		rootPath, readOnly, err = d.authenticator(user, pass, host)
		if err != nil {
			return nil, err
		}
	} else {
		if d.disableAnonymous {
			return nil, errors.New("anonymous login disabled")
		}
		if user != "ftp" && user != "anonymous" {
			return nil, errors.New("only anonymous login allowed")
		}
		readOnly = !d.enableAnonWrite
	}

	return &fsContext{
		root:     rootPath,
		cwd:      rootPath,
		readOnly: readOnly,
		settings: d.settings,
	}, nil
}

// fsContext implements ClientContext for the local filesystem. It tracks the
// current working directory as an absolute, rooted path and relies on
// pathjail.Resolve to turn every user-supplied path into one guaranteed to
// stay within root before any os.* call sees it.
type fsContext struct {
	root     string
	cwd      string
	readOnly bool
	settings *Settings
}

// Close is a no-op: the plain os.* calls underlying fsContext hold no
// standing file descriptor the way an *os.Root handle would.
func (c *fsContext) Close() error {
	return nil
}

// resolve turns a user-supplied path into an absolute real filesystem path,
// jailed under c.root. The virtual cwd/root seen by the client is the
// literal filesystem path; pathjail's root/cwd are the same absolute
// directory, so a returned path is both real and chroot-valid at once.
func (c *fsContext) resolve(userInput string) (string, error) {
	return pathjail.Resolve(c.root, c.cwd, userInput)
}

// ChangeDir changes the current working directory, verifying the
// destination exists and is a directory.
func (c *fsContext) ChangeDir(path string) error {
	abs, err := c.resolve(path)
	if err != nil {
		return err
	}
	info, err := os.Stat(abs)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return errors.New("not a directory")
	}
	c.cwd = abs
	return nil
}

// GetWd returns the current working directory, relative to the virtual
// root (i.e. with c.root stripped to "/").
func (c *fsContext) GetWd() (string, error) {
	if c.cwd == c.root {
		return "/", nil
	}
	rel := c.cwd[len(c.root):]
	if rel == "" {
		return "/", nil
	}
	return rel, nil
}

// MakeDir creates a new directory with 0755 permissions.
func (c *fsContext) MakeDir(path string) error {
	if c.readOnly {
		return os.ErrPermission
	}
	abs, err := c.resolve(path)
	if err != nil {
		return err
	}
	return os.Mkdir(abs, 0755)
}

// RemoveDir removes an empty directory.
func (c *fsContext) RemoveDir(path string) error {
	if c.readOnly {
		return os.ErrPermission
	}
	abs, err := c.resolve(path)
	if err != nil {
		return err
	}
	return os.Remove(abs)
}

// DeleteFile removes a file.
func (c *fsContext) DeleteFile(path string) error {
	if c.readOnly {
		return os.ErrPermission
	}
	abs, err := c.resolve(path)
	if err != nil {
		return err
	}
	return os.Remove(abs)
}

// Rename moves or renames a file or directory, with a copy+unlink fallback
// for cross-device renames (EXDEV).
func (c *fsContext) Rename(fromPath, toPath string) error {
	if c.readOnly {
		return os.ErrPermission
	}
	src, err := c.resolve(fromPath)
	if err != nil {
		return err
	}
	dst, err := c.resolve(toPath)
	if err != nil {
		return err
	}

	if err := os.Rename(src, dst); err != nil {
		if linkErr, ok := err.(*os.LinkError); ok && isCrossDevice(linkErr) {
			return renameCrossDevice(src, dst)
		}
		return err
	}
	return nil
}

// ListDir returns the entries of the specified directory.
func (c *fsContext) ListDir(path string) ([]os.FileInfo, error) {
	abs, err := c.resolve(path)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(abs)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	entries, err := f.ReadDir(-1)
	if err != nil {
		return nil, err
	}

	infos := make([]os.FileInfo, 0, len(entries))
	for _, entry := range entries {
		info, err := entry.Info()
		if err == nil {
			infos = append(infos, info)
		}
	}
	return infos, nil
}

// OpenFile opens a file for transfer (reading or writing).
func (c *fsContext) OpenFile(path string, flag int) (io.ReadWriteCloser, error) {
	if c.readOnly {
		if flag&os.O_WRONLY != 0 || flag&os.O_RDWR != 0 || flag&os.O_CREATE != 0 || flag&os.O_TRUNC != 0 || flag&os.O_APPEND != 0 {
			return nil, os.ErrPermission
		}
	}
	abs, err := c.resolve(path)
	if err != nil {
		return nil, err
	}
	return os.OpenFile(abs, flag, 0644)
}

// GetFileInfo returns status information for a file or directory.
func (c *fsContext) GetFileInfo(path string) (os.FileInfo, error) {
	abs, err := c.resolve(path)
	if err != nil {
		return nil, err
	}
	return os.Stat(abs)
}

func (c *fsContext) GetSettings() *Settings {
	if c.settings == nil {
		return &Settings{}
	}
	return c.settings
}

// isCrossDevice reports whether a rename failed because src and dst live on
// different filesystems (EXDEV), the one case os.Rename cannot handle itself.
func isCrossDevice(err *os.LinkError) bool {
	errno, ok := err.Err.(syscall.Errno)
	return ok && errno == syscall.EXDEV
}

// renameCrossDevice implements rename as copy-then-unlink, for the EXDEV
// case os.Rename can't satisfy atomically.
func renameCrossDevice(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return err
	}

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return err
	}

	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(dst)
		return err
	}
	if err := out.Close(); err != nil {
		os.Remove(dst)
		return err
	}

	return os.Remove(src)
}
