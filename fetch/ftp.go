package fetch

import (
	"context"
	"fmt"
	"net"
	neturl "net/url"
	"time"

	"github.com/jlaffaye/ftp"
)

// ftpStrategy retrieves a file over anonymous FTP.
type ftpStrategy struct{}

func (ftpStrategy) Name() string { return "ftp" }

func (ftpStrategy) Fetch(ctx context.Context, url, dest string) error {
	var u, err = neturl.Parse(url)
	if err != nil {
		return fmt.Errorf("parsing %s: %w", url, err)
	}
	if u.Scheme != "ftp" {
		return fmt.Errorf("fetching %s: not an ftp URL", url)
	}
	var addr = u.Host
	if u.Port() == "" {
		addr = net.JoinHostPort(u.Hostname(), "21")
	}

	conn, err := ftp.Dial(addr,
		ftp.DialWithContext(ctx),
		ftp.DialWithTimeout(15*time.Second),
	)
	if err != nil {
		return fmt.Errorf("dialing %s: %w", addr, err)
	}
	defer conn.Quit()

	if err = conn.Login("anonymous", "anonymous"); err != nil {
		return fmt.Errorf("ftp login on %s: %w", addr, err)
	}
	resp, err := conn.Retr(u.Path)
	if err != nil {
		return fmt.Errorf("retrieving %s: %w", u.Path, err)
	}
	defer resp.Close()

	return writeFileFrom(resp, dest)
}
