package export

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jlaffaye/ftp"
)

const ftpTimeout = 30 * time.Second

// Destination is where a finished workbook is written.
type Destination interface {
	Write(ctx context.Context, r io.Reader) error
	String() string
}

// ParseDestination accepts a local file path or an ftp:// URL. FTP
// credentials default to anonymous.
func ParseDestination(raw string) (Destination, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, fmt.Errorf("empty export destination")
	}

	if !strings.HasPrefix(strings.ToLower(raw), "ftp://") {
		return FileDestination{Path: raw}, nil
	}

	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("parse ftp destination: %w", err)
	}
	if u.Hostname() == "" {
		return nil, fmt.Errorf("ftp destination %s: missing host", u.Redacted())
	}
	if u.Path == "" || strings.HasSuffix(u.Path, "/") {
		return nil, fmt.Errorf("ftp destination %s: missing file name", u.Redacted())
	}

	port := u.Port()
	if port == "" {
		port = "21"
	}
	dest := FTPDestination{
		Addr:     net.JoinHostPort(u.Hostname(), port),
		User:     "anonymous",
		Password: "anonymous",
		Path:     u.Path,
	}
	if u.User != nil {
		dest.User = u.User.Username()
		if pass, ok := u.User.Password(); ok {
			dest.Password = pass
		}
	}
	return dest, nil
}

// FileDestination overwrites a local file. The workbook is written to a
// sibling temp file and renamed into place so readers never see a partial file.
// An existing destination keeps its permissions and must be writable.
type FileDestination struct {
	Path string
}

func (d FileDestination) String() string { return d.Path }

func (d FileDestination) Write(ctx context.Context, r io.Reader) error {
	mode, err := d.checkWritable()
	if err != nil {
		return err
	}

	dir := filepath.Dir(d.Path)
	tmp, err := os.CreateTemp(dir, ".weatherlog-*.xlsx")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op after rename

	if _, err := io.Copy(tmp, r); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Chmod(tmpName, mode); err != nil {
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err := os.Rename(tmpName, d.Path); err != nil {
		return fmt.Errorf("replace %s: %w", d.Path, err)
	}
	return nil
}

// checkWritable fails for a read-only destination and returns the mode the
// replacement should carry.
func (d FileDestination) checkWritable() (os.FileMode, error) {
	info, err := os.Stat(d.Path)
	if errors.Is(err, fs.ErrNotExist) {
		return 0o644, nil
	}
	if err != nil {
		return 0, fmt.Errorf("stat %s: %w", d.Path, err)
	}
	if !info.Mode().IsRegular() {
		return 0, fmt.Errorf("%s is not a regular file", d.Path)
	}
	if info.Mode().Perm()&0o222 == 0 {
		return 0, fmt.Errorf("%s is read-only: %w", d.Path, fs.ErrPermission)
	}
	f, err := os.OpenFile(d.Path, os.O_WRONLY, 0)
	if err != nil {
		return 0, fmt.Errorf("open %s for writing: %w", d.Path, err)
	}
	f.Close()
	return info.Mode().Perm(), nil
}

// FTPDestination uploads to a remote server with STOR, replacing any existing file.
type FTPDestination struct {
	Addr     string
	User     string
	Password string
	Path     string
}

func (d FTPDestination) String() string {
	u := url.URL{Scheme: "ftp", Host: d.Addr, Path: d.Path}
	if d.User != "anonymous" {
		u.User = url.User(d.User)
	}
	return u.String()
}

func (d FTPDestination) Write(ctx context.Context, r io.Reader) error {
	conn, err := ftp.Dial(d.Addr, ftp.DialWithContext(ctx), ftp.DialWithTimeout(ftpTimeout))
	if err != nil {
		return fmt.Errorf("ftp dial: %w", err)
	}
	defer conn.Quit()

	if err := conn.Login(d.User, d.Password); err != nil {
		return fmt.Errorf("ftp login: %w", err)
	}
	if err := conn.Stor(d.Path, r); err != nil {
		return fmt.Errorf("ftp stor %s: %w", d.Path, err)
	}
	return nil
}
